// Package dialer implements the outbound half of a session: resolve the
// requested (or fallback) host, then connect, surfacing the two failure
// modes distinctly.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/GreaterFire/trojan/internal/resolve"
)

// ConnectError wraps a TCP connect failure, after resolution has already
// succeeded.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.Addr, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// Dialer resolves a host and dials the first returned address.
type Dialer struct {
	resolver resolve.Resolver
	net      net.Dialer
}

// New builds a Dialer using r for name resolution.
func New(r resolve.Resolver) *Dialer {
	return &Dialer{resolver: r}
}

// Dial resolves host and connects to "<first resolved IP>:port". Only the
// first resolved address is attempted; happy-eyeballs is not implemented.
// A resolution failure is returned as *resolve.Error; a connect failure as
// *ConnectError — callers distinguish the two with errors.As to pick the
// right log message and metric label.
func (d *Dialer) Dial(ctx context.Context, host string, port uint16) (net.Conn, error) {
	ips, err := d.resolver.Resolve(ctx, host)
	if err != nil {
		var resolveErr *resolve.Error
		if errors.As(err, &resolveErr) {
			return nil, err
		}
		return nil, &resolve.Error{Host: host, Err: err}
	}
	if len(ips) == 0 {
		return nil, &resolve.Error{Host: host, Err: fmt.Errorf("resolver returned no addresses")}
	}

	addr := net.JoinHostPort(ips[0].String(), strconv.Itoa(int(port)))
	conn, err := d.net.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	return conn, nil
}
