package rtserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sammck-go/revtcp/rtshare"
)

// TestFailedAuthenticationDoesNotBlockSupply verifies that a reverse
// connection that fails authentication is dropped silently, and does
// not prevent a subsequent, correctly-authenticated connection from
// being yielded by the tunnel supply.
func TestFailedAuthenticationDoesNotBlockSupply(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	psk := []byte("correct")
	srv := New(rtshare.NewLogger("test", rtshare.LogLevelError), Config{PSK: psk})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tunnels := srv.authenticatedTunnelSupply(ctx, l)

	// First dial-in uses the wrong PSK and must be dropped.
	go func() {
		conn, err := net.Dial("tcp", l.Addr().String())
		if err != nil {
			return
		}
		rtshare.NewUnauthenticatedTunnel(conn).Authenticate([]byte("wrong"))
	}()

	// Second dial-in uses the correct PSK and must be yielded.
	go func() {
		conn, err := net.Dial("tcp", l.Addr().String())
		if err != nil {
			return
		}
		rtshare.NewUnauthenticatedTunnel(conn).Authenticate(psk)
	}()

	select {
	case tunnel := <-tunnels:
		tunnel.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("expected one authenticated tunnel to be yielded despite a failed sibling attempt")
	}
}

// closeTrackingConn wraps a net.Conn and records whether Close was
// ever called on it.
type closeTrackingConn struct {
	net.Conn
	closed bool
}

func (c *closeTrackingConn) Close() error {
	c.closed = true
	return c.Conn.Close()
}

// TestPairClosesTunnelWhenSignalingFails verifies that when
// ConnectionAvailable fails on a pooled tunnel (e.g. the reverse
// connection died between authentication and pairing), pair closes
// the tunnel instead of leaking its underlying connection.
func TestPairClosesTunnelWhenSignalingFails(t *testing.T) {
	a, b := net.Pipe()
	track := &closeTrackingConn{Conn: a}

	psk := []byte("psk")
	authDone := make(chan struct{})
	var tunnel rtshare.AuthenticatedTunnel
	var authErr error
	go func() {
		tunnel, authErr = rtshare.NewUnauthenticatedTunnel(track).Authenticate(psk)
		close(authDone)
	}()
	if _, err := rtshare.NewUnauthenticatedTunnel(b).Authenticate(psk); err != nil {
		t.Fatalf("peer authenticate: %v", err)
	}
	<-authDone
	if authErr != nil {
		t.Fatalf("authenticate: %v", authErr)
	}

	// Break the tunnel before it's paired, simulating a pooled
	// connection that died: ConnectionAvailable's write will now fail.
	b.Close()

	userSide, userPeer := net.Pipe()
	defer userPeer.Close()

	users := make(chan net.Conn, 1)
	users <- userSide
	close(users)
	tunnels := make(chan rtshare.AuthenticatedTunnel, 1)
	tunnels <- tunnel
	close(tunnels)

	s := &Server{logger: rtshare.NewLogger("test", rtshare.LogLevelError)}
	s.pair(context.Background(), users, tunnels)

	if !track.closed {
		t.Fatal("expected ConnectionAvailable failure to close the tunnel")
	}
}
