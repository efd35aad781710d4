package rtshare

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
)

// SaltSize is the size in bytes of a challenge salt.
const SaltSize = 32

// ResponseSize is the size in bytes of a derived response.
const ResponseSize = sha256.Size

// Challenge is the pair (psk, salt). It is immutable once constructed
// and has exactly one derived value, its Response.
type Challenge struct {
	psk  []byte
	salt [SaltSize]byte
}

// CreateChallenge draws SaltSize cryptographically random bytes and
// pairs them with psk. Fails only if the platform RNG fails.
func CreateChallenge(psk []byte) (Challenge, error) {
	var salt [SaltSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return Challenge{}, &RngError{Err: err}
	}
	return Challenge{psk: psk, salt: salt}, nil
}

// ReadChallenge reads exactly SaltSize bytes from r as a salt and
// pairs them with psk. Fails with IoError if the stream ends before
// SaltSize bytes arrive.
func ReadChallenge(psk []byte, r io.Reader) (Challenge, error) {
	var salt [SaltSize]byte
	if _, err := io.ReadFull(r, salt[:]); err != nil {
		return Challenge{}, &IoError{Err: err}
	}
	return Challenge{psk: psk, salt: salt}, nil
}

// Send writes the challenge's salt to w with no framing and no length
// prefix.
func (c Challenge) Send(w io.Writer) error {
	if err := writeFull(w, c.salt[:]); err != nil {
		return &IoError{Err: err}
	}
	return nil
}

// Response derives SHA-256(psk ‖ salt) from the challenge.
func (c Challenge) Response() Response {
	h := sha256.New()
	h.Write(c.psk)
	h.Write(c.salt[:])
	var resp Response
	copy(resp.hash[:], h.Sum(nil))
	return resp
}

// Response is a 32-byte value with no salt attached; two Responses
// are equal iff their bytes are equal.
type Response struct {
	hash [ResponseSize]byte
}

// ReadResponse reads exactly ResponseSize bytes from r.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	if _, err := io.ReadFull(r, resp.hash[:]); err != nil {
		return Response{}, &IoError{Err: err}
	}
	return resp, nil
}

// Send writes exactly ResponseSize bytes to w.
func (r Response) Send(w io.Writer) error {
	if err := writeFull(w, r.hash[:]); err != nil {
		return &IoError{Err: err}
	}
	return nil
}

// Check byte-compares two Responses, returning ResponseMismatch if
// they differ.
func (r Response) Check(other Response) error {
	if r.hash != other.hash {
		return &ResponseMismatch{}
	}
	return nil
}

// writeFull writes all of p to w. A conforming io.Writer either writes
// len(p) bytes or returns a non-nil error, so a short write without an
// error is treated as a broken Writer rather than retried.
func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
