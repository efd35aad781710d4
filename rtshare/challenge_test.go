package rtshare

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestChallengeResponseMatchesSHA256(t *testing.T) {
	psk := []byte("hunter2")
	c, err := CreateChallenge(psk)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	resp := c.Response()

	want := sha256.Sum256(append(append([]byte{}, psk...), c.salt[:]...))
	if !bytes.Equal(resp.hash[:], want[:]) {
		t.Fatalf("response does not match SHA-256(psk||salt)")
	}
}

func TestResponseCheckEqual(t *testing.T) {
	psk := []byte("shared")
	salt := [SaltSize]byte{1, 2, 3}
	c1 := Challenge{psk: psk, salt: salt}
	c2 := Challenge{psk: psk, salt: salt}

	if err := c1.Response().Check(c2.Response()); err != nil {
		t.Fatalf("expected equal responses to check ok, got %v", err)
	}
}

func TestResponseCheckMismatchOnDifferentPSK(t *testing.T) {
	salt := [SaltSize]byte{9, 9, 9}
	a := Challenge{psk: []byte("a"), salt: salt}
	b := Challenge{psk: []byte("b"), salt: salt}

	err := a.Response().Check(b.Response())
	if err == nil {
		t.Fatal("expected mismatch for different PSKs")
	}
	if _, ok := err.(*ResponseMismatch); !ok {
		t.Fatalf("expected *ResponseMismatch, got %T", err)
	}
}

func TestReadChallengeShortRead(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3})
	_, err := ReadChallenge([]byte("psk"), r)
	if err == nil {
		t.Fatal("expected error on short read")
	}
	if _, ok := err.(*IoError); !ok {
		t.Fatalf("expected *IoError, got %T", err)
	}
}

func TestChallengeSendRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c, err := CreateChallenge([]byte("psk"))
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if err := c.Send(&buf); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if buf.Len() != SaltSize {
		t.Fatalf("expected %d bytes written, got %d", SaltSize, buf.Len())
	}

	got, err := ReadChallenge([]byte("psk"), &buf)
	if err != nil {
		t.Fatalf("ReadChallenge: %v", err)
	}
	if got.salt != c.salt {
		t.Fatal("salt did not round-trip")
	}
}

func TestResponseSendRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c, _ := CreateChallenge([]byte("psk"))
	resp := c.Response()
	if err := resp.Send(&buf); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if buf.Len() != ResponseSize {
		t.Fatalf("expected %d bytes written, got %d", ResponseSize, buf.Len())
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.hash != resp.hash {
		t.Fatal("response did not round-trip")
	}
}
