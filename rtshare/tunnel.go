package rtshare

import (
	"io"
	"net"
)

// connectMagic is the 7 ASCII bytes that signal a bridge request
// in-band on an authenticated tunnel.
const connectMagic = "connect"

// UnauthenticatedTunnel owns a freshly-accepted-or-dialed net.Conn
// that has not yet run the mutual challenge-response handshake. The
// only operation available in this phase is Authenticate, which
// consumes the tunnel.
type UnauthenticatedTunnel struct {
	conn net.Conn
}

// NewUnauthenticatedTunnel wraps conn as a tunnel in the
// Unauthenticated phase.
func NewUnauthenticatedTunnel(conn net.Conn) UnauthenticatedTunnel {
	return UnauthenticatedTunnel{conn: conn}
}

// Authenticate runs the mutual challenge-response handshake over the
// tunnel's stream. On success it returns the tunnel promoted to the
// Authenticated phase. On failure the underlying stream is closed and
// the tunnel is consumed with no successor value.
func (t UnauthenticatedTunnel) Authenticate(psk []byte) (AuthenticatedTunnel, error) {
	if err := runHandshake(t.conn, psk); err != nil {
		t.conn.Close()
		return AuthenticatedTunnel{}, err
	}
	return AuthenticatedTunnel{conn: t.conn}, nil
}

// AuthenticatedTunnel owns a tunnel whose peer has proven it holds the
// same PSK. Exactly one signal is exchanged per tunnel before it may
// be used to proxy.
type AuthenticatedTunnel struct {
	conn net.Conn
}

// WaitForConnection reads exactly 7 bytes; if they equal the ASCII
// "connect" it returns the tunnel promoted to the Connected phase,
// otherwise ProtocolError. Called by the client side, which is being
// told a user has arrived.
func (t AuthenticatedTunnel) WaitForConnection() (ConnectedTunnel, error) {
	buf := make([]byte, len(connectMagic))
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return ConnectedTunnel{}, &IoError{Err: err}
	}
	if string(buf) != connectMagic {
		return ConnectedTunnel{}, &ProtocolError{Reason: "expected \"connect\" magic bytes"}
	}
	return ConnectedTunnel{conn: t.conn}, nil
}

// ConnectionAvailable writes the 7 ASCII bytes "connect" and returns
// the tunnel promoted to the Connected phase. Called by the server
// side, which is offering the bridge.
func (t AuthenticatedTunnel) ConnectionAvailable() (ConnectedTunnel, error) {
	if err := writeFull(t.conn, []byte(connectMagic)); err != nil {
		return ConnectedTunnel{}, &IoError{Err: err}
	}
	return ConnectedTunnel{conn: t.conn}, nil
}

// Close abandons an authenticated tunnel without signalling it,
// closing its underlying stream. Used when a driver shuts down while
// tunnels are still pooled.
func (t AuthenticatedTunnel) Close() error {
	return t.conn.Close()
}

// ConnectedTunnel owns a tunnel that has completed the in-band signal
// exchange and may now carry the tunnelled payload. This is the only
// phase in which ProxyFor may be called.
type ConnectedTunnel struct {
	conn net.Conn
}

// ProxyFor runs the bidirectional splice between this tunnel's stream
// and other, consuming the tunnel. Terminal: this tunnel's underlying
// stream (and other) are closed before ProxyFor returns.
func (t ConnectedTunnel) ProxyFor(logger Logger, other net.Conn) error {
	return Splice(logger, t.conn, other)
}

// Close abandons a connected tunnel without proxying it, closing its
// underlying stream. Used when a driver cannot complete the other half
// of the bridge (e.g. the local target dial fails) and must release
// the tunnel instead of leaking it.
func (t ConnectedTunnel) Close() error {
	return t.conn.Close()
}

