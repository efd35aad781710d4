// Package rtclient implements the client driver: it maintains a supply
// of authenticated outbound tunnels to a rendezvous server and, upon
// each bridge signal, dials the local target and splices the two
// streams together.
package rtclient

import (
	"context"
	"net"
	"time"

	"github.com/jpillora/backoff"

	"github.com/sammck-go/revtcp/rtshare"
)

// Config holds the client's configuration record.
type Config struct {
	// PSK is the pre-shared key, possibly empty.
	PSK []byte

	// RendezvousAddr is the host:port of the rendezvous server's
	// reverse-tunnel listener.
	RendezvousAddr string

	// TargetAddr is the host:port of the local service this client
	// exposes through the tunnel.
	TargetAddr string
}

// Client runs the client driver loop for the life of the supplied
// context.
type Client struct {
	config Config
	logger rtshare.Logger
	stats  rtshare.ConnStats
}

// New creates a Client. logger is forked with the "client" prefix.
func New(logger rtshare.Logger, config Config) *Client {
	return &Client{
		config: config,
		logger: logger.Fork("client"),
	}
}

// Run executes the client driver loop until ctx is cancelled. Each
// iteration dials the rendezvous endpoint, authenticates, waits for
// the connect signal, dials the local target, and spawns a splice,
// fire-and-forget from the loop's perspective, before immediately
// beginning the next iteration. Dial and handshake failures are logged
// as warnings and retried with no backoff.
func (c *Client) Run(ctx context.Context) {
	// A zero Min or Max selects the package defaults (100ms growing
	// to 10s), so both are one nanosecond instead: with Min >= Max,
	// Duration() always yields Max, an effectively immediate retry.
	retry := &backoff.Backoff{Min: time.Nanosecond, Max: time.Nanosecond}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.runOnce(ctx); err != nil {
			c.logger.WLogf("tunnel attempt failed: %s", err)
		}
		if wait := retry.Duration(); wait > 0 {
			time.Sleep(wait)
		}
	}
}

// runOnce performs one full iteration of the client driver loop: dial,
// authenticate, wait for the signal, dial the target, splice. It
// returns the first error encountered, or nil once a splice has been
// spawned (the splice itself runs detached; its outcome is not
// observed by the driver).
func (c *Client) runOnce(ctx context.Context) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.RendezvousAddr)
	if err != nil {
		return err
	}

	unauth := rtshare.NewUnauthenticatedTunnel(conn)
	authed, err := unauth.Authenticate(c.config.PSK)
	if err != nil {
		return err
	}
	c.stats.New()

	connected, err := authed.WaitForConnection()
	if err != nil {
		authed.Close()
		return err
	}

	target, err := dialer.DialContext(ctx, "tcp", c.config.TargetAddr)
	if err != nil {
		connected.Close()
		return err
	}

	c.stats.Open()
	go func() {
		if err := connected.ProxyFor(c.logger, target); err != nil {
			c.logger.DLogf("%s splice ended: %s", &c.stats, err)
		}
		c.stats.Close()
	}()

	return nil
}
