// Package core implements the acceptor: bind a TLS listener, accept, hand
// each connection to a new session.
package core

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/GreaterFire/trojan/internal/dialer"
	"github.com/GreaterFire/trojan/internal/metrics"
	"github.com/GreaterFire/trojan/internal/session"
)

// Server binds a TLS listener and spawns one session per accepted
// connection. It does not participate in any per-session state.
type Server struct {
	Listener  net.Listener
	TLSConfig *tls.Config
	Dialer    *dialer.Dialer
	Metrics   *metrics.Metrics
	Log       *zap.Logger

	SessionConfig session.Config
}

// Serve binds the TLS layer over s.Listener and accepts connections until
// the listener is closed. Any other Accept error is logged and the loop
// continues.
func (s *Server) Serve() error {
	tlsListener := tls.NewListener(s.Listener, s.TLSConfig)
	for {
		conn, err := tlsListener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("core: accept: %w", err)
			}
			s.Log.Error("accept failed", zap.Error(err))
			continue
		}
		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			// tls.NewListener always wraps in *tls.Conn; this can't
			// happen, but closing defensively costs nothing.
			conn.Close()
			continue
		}
		sess := session.New(tlsConn, s.SessionConfig, s.Dialer, s.Log, s.Metrics)
		go sess.Run()
	}
}
