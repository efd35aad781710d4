// Package rtserver implements the server driver: it accepts public
// user connections and authenticated reverse tunnels on two separate
// listeners, pairs them in order, signals the bridge, and splices.
package rtserver

import (
	"context"
	"net"

	"github.com/sammck-go/revtcp/rtshare"
)

// Config holds the server's configuration record.
type Config struct {
	// PSK is the pre-shared key, possibly empty.
	PSK []byte

	// RevBindAddr is the address the reverse-tunnel listener binds,
	// for client dial-ins.
	RevBindAddr string

	// UserBindAddr is the address the public listener binds, for
	// end-user connections.
	UserBindAddr string
}

// Server runs the server driver.
type Server struct {
	config Config
	logger rtshare.Logger
	stats  rtshare.ConnStats
}

// New creates a Server. logger is forked with the "server" prefix.
func New(logger rtshare.Logger, config Config) *Server {
	return &Server{
		config: config,
		logger: logger.Fork("server"),
	}
}

// Run opens both listeners and runs the pairing loop until ctx is
// cancelled or a listener accept loop exits. Listener-bind failures
// are fatal to the process and are returned directly so the caller
// (main) can log.Fatal on them.
func (s *Server) Run(ctx context.Context) error {
	revListener, err := net.Listen("tcp", s.config.RevBindAddr)
	if err != nil {
		return err
	}
	defer revListener.Close()

	userListener, err := net.Listen("tcp", s.config.UserBindAddr)
	if err != nil {
		return err
	}
	defer userListener.Close()

	go closeOnDone(ctx, revListener)
	go closeOnDone(ctx, userListener)

	s.logger.ILogf("reverse tunnels on %s, users on %s", revListener.Addr(), userListener.Addr())

	tunnels := s.authenticatedTunnelSupply(ctx, revListener)
	users := userConnSupply(ctx, userListener)

	s.pair(ctx, users, tunnels)
	return nil
}

// closeOnDone closes l as soon as ctx is cancelled, unblocking its
// Accept loop.
func closeOnDone(ctx context.Context, l net.Listener) {
	<-ctx.Done()
	l.Close()
}

// authenticatedTunnelSupply is the lazy authenticated-tunnel source:
// for each accepted connection on l, it runs the handshake and yields
// the tunnel iff authentication succeeded, silently dropping (after a
// warning log) on failure. The channel is unbuffered: a completed
// authentication blocks until the pairing loop is ready to consume
// it, which provides backpressure on user-accept.
func (s *Server) authenticatedTunnelSupply(ctx context.Context, l net.Listener) <-chan rtshare.AuthenticatedTunnel {
	out := make(chan rtshare.AuthenticatedTunnel)
	go func() {
		defer close(out)
		for {
			conn, err := l.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
				default:
					s.logger.WLogf("reverse listener accept failed: %s", err)
				}
				return
			}
			go s.authenticate(ctx, conn, out)
		}
	}()
	return out
}

// authenticate runs the handshake for one accepted reverse-tunnel
// connection and, on success, attempts to hand it to the pairing loop
// via out. If ctx is cancelled first, the tunnel is dropped instead of
// leaking a blocked goroutine.
func (s *Server) authenticate(ctx context.Context, conn net.Conn, out chan<- rtshare.AuthenticatedTunnel) {
	unauth := rtshare.NewUnauthenticatedTunnel(conn)
	authed, err := unauth.Authenticate(s.config.PSK)
	if err != nil {
		s.logger.WLogf("tunnel authentication failed: %s", err)
		return
	}
	s.stats.New()
	select {
	case out <- authed:
	case <-ctx.Done():
		authed.Close()
	}
}

// userConnSupply is the lazy user-connection source: each accepted
// connection on l is yielded in accept order.
func userConnSupply(ctx context.Context, l net.Listener) <-chan net.Conn {
	out := make(chan net.Conn)
	go func() {
		defer close(out)
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			select {
			case out <- conn:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()
	return out
}

// pair implements the pairing loop: await a user connection, then
// await one authenticated tunnel, then signal the bridge and spawn a
// splice. Users are consumed in accept order, tunnels in
// authentication-completion order; a user blocks until a tunnel is
// ready and vice versa. Awaiting the user first, then the tunnel,
// avoids holding an idle tunnel's signal-write against a stalled user
// accept.
func (s *Server) pair(ctx context.Context, users <-chan net.Conn, tunnels <-chan rtshare.AuthenticatedTunnel) {
	for {
		var user net.Conn
		select {
		case u, ok := <-users:
			if !ok {
				return
			}
			user = u
		case <-ctx.Done():
			return
		}

		var tunnel rtshare.AuthenticatedTunnel
		select {
		case t, ok := <-tunnels:
			if !ok {
				user.Close()
				return
			}
			tunnel = t
		case <-ctx.Done():
			user.Close()
			return
		}

		connected, err := tunnel.ConnectionAvailable()
		if err != nil {
			s.logger.WLogf("failed to signal tunnel: %s", err)
			tunnel.Close()
			user.Close()
			continue
		}

		s.stats.Open()
		go func() {
			if err := connected.ProxyFor(s.logger, user); err != nil {
				s.logger.DLogf("%s splice ended: %s", &s.stats, err)
			}
			s.stats.Close()
		}()
	}
}
