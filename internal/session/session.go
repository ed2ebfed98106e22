// Package session implements the per-connection state machine: TLS accept,
// first-payload classification, dial, full-duplex relay, teardown. One
// goroutine runs the handshake and the outbound dial sequentially, then
// forks one goroutine per direction to relay once both sides are connected.
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GreaterFire/trojan/internal/dialer"
	"github.com/GreaterFire/trojan/internal/digest"
	"github.com/GreaterFire/trojan/internal/metrics"
	"github.com/GreaterFire/trojan/internal/protocol"
	"github.com/GreaterFire/trojan/internal/resolve"
)

// Target is where a session ends up dialing: either the client-requested
// address (a valid tunneling request) or the configured fallback origin.
type Target struct {
	Host string
	Port uint16
}

// Config is the subset of the process configuration a session needs. It
// is a small, explicit interface-shaped struct rather than a dependency on
// internal/config, so the state machine can be unit-tested without a
// config file.
type Config struct {
	PasswordDigest string
	Fallback       Target
}

// Session is one accepted connection's lifetime: TLS acceptance,
// classification, dial, relay, teardown.
type Session struct {
	cfg     Config
	dial    *dialer.Dialer
	log     *zap.Logger
	metrics *metrics.Metrics

	inbound  *tls.Conn
	outbound net.Conn

	peer string

	status int32 // State, written atomically; destroy's idempotency comes from destroyOnce

	ctx    context.Context
	cancel context.CancelFunc

	destroyOnce sync.Once
}

// New constructs a Session over an already-accepted *tls.Conn. The TLS
// handshake itself has not necessarily happened yet; Run performs it
// explicitly so a handshake failure is a distinct, loggable event.
func New(conn *tls.Conn, cfg Config, d *dialer.Dialer, log *zap.Logger, m *metrics.Metrics) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:     cfg,
		dial:    d,
		log:     log,
		metrics: m,
		inbound: conn,
		status:  int32(StateHandshake),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Session) setState(v State) { atomic.StoreInt32(&s.status, int32(v)) }

// Run drives the session to completion. It does not return until the
// session has fully torn down.
func (s *Session) Run() {
	s.metrics.SessionStarted()
	defer s.metrics.SessionEnded()

	if err := s.inbound.HandshakeContext(s.ctx); err != nil {
		s.log.Error("TLS handshake failed", zap.Error(err))
		s.destroy("handshake failure logged above; nothing sent yet")
		return
	}
	s.peer = s.inbound.RemoteAddr().String()

	buf := make([]byte, MaxLength)
	n, err := s.inbound.Read(buf)
	if err != nil {
		// A read error before any classification happened: nothing to log
		// beyond the teardown itself (there is no peer-visible asymmetry
		// to preserve here — the peer already broke the connection).
		s.destroy("disconnected")
		return
	}
	first := buf[:n]

	s.setState(StateConnectingRemote)
	target, pending, establishedTunnel := s.classify(first)

	conn, err := s.dial.Dial(s.ctx, target.Host, target.Port)
	if err != nil {
		s.logDialError(err, target)
		s.destroy("disconnected")
		return
	}
	s.outbound = conn

	if establishedTunnel {
		s.log.Info("tunnel established",
			zap.String("peer", s.peer),
			zap.String("target", net.JoinHostPort(target.Host, portString(target.Port))),
		)
		s.metrics.TunnelEstablished()
	} else {
		s.log.Info("forwarding to fallback origin",
			zap.String("peer", s.peer),
			zap.String("target", net.JoinHostPort(target.Host, portString(target.Port))),
		)
		s.metrics.Fallback()
	}

	s.setState(StateForwarding)
	s.forward(pending)
	s.destroy("disconnected")
}

// classify inspects the first inbound read and decides where to dial.
// Returns the dial target, the payload that must be written to outbound
// first, and whether this is an authenticated tunnel (vs. fallback).
func (s *Session) classify(first []byte) (target Target, pending []byte, tunnel bool) {
	credential, rest, ok := protocol.SplitCredentialLine(first)
	if !ok || !digest.Equal(credential, s.cfg.PasswordDigest) {
		s.log.Warn("not a tunneling request, falling back", zap.String("peer", s.peer))
		return s.cfg.Fallback, first, false
	}

	req, _, payload, err := protocol.Parse(rest)
	if err != nil {
		s.log.Warn("malformed tunneling request, falling back", zap.String("peer", s.peer), zap.Error(err))
		return s.cfg.Fallback, first, false
	}
	if req.Command != protocol.CommandConnect {
		s.log.Warn("unsupported tunneling command, falling back", zap.String("peer", s.peer), zap.Uint8("command", uint8(req.Command)))
		return s.cfg.Fallback, first, false
	}

	return Target{Host: req.Address, Port: req.Port}, payload, true
}

// forward relays in both directions, one goroutine per direction, each a
// single blocking read-write loop (io.Copy). If pending is non-empty it is
// written to outbound before the inbound->outbound copy begins, draining
// the stashed payload first. Either direction ending — with an error or
// with a clean EOF — tears down the whole session: an HTTP/1.0 origin that
// answers and closes its end is a normal outcome, not a failure, but it
// still means the other direction's read would otherwise block forever
// with nothing left to relay.
func (s *Session) forward(pending []byte) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer s.destroy("disconnected")
		io.Copy(s.inbound, s.outbound)
	}()

	go func() {
		defer wg.Done()
		defer s.destroy("disconnected")
		if len(pending) > 0 {
			if _, err := s.outbound.Write(pending); err != nil {
				return
			}
		}
		io.Copy(s.outbound, s.inbound)
	}()

	wg.Wait()
}

// logDialError distinguishes a resolution failure from a connect failure so
// the log line and the error-kind metric label name the actual cause.
func (s *Session) logDialError(err error, target Target) {
	var resolveErr *resolve.Error
	var connectErr *dialer.ConnectError
	switch {
	case errors.As(err, &resolveErr):
		s.log.Error("cannot resolve remote server hostname",
			zap.String("peer", s.peer), zap.String("host", target.Host), zap.Error(err))
		s.metrics.Error("resolve")
	case errors.As(err, &connectErr):
		s.log.Error("cannot establish connection to remote server",
			zap.String("peer", s.peer),
			zap.String("target", net.JoinHostPort(target.Host, portString(target.Port))),
			zap.Error(err))
		s.metrics.Error("connect")
	default:
		s.log.Error("dial failed", zap.String("peer", s.peer), zap.Error(err))
		s.metrics.Error("dial")
	}
}

// destroy is the sole teardown path: idempotent, cancels any pending
// resolution/dial, force-closes outbound, gracefully shuts down inbound
// (best-effort), and logs the reason exactly once no matter how many
// goroutines call it concurrently.
func (s *Session) destroy(reason string) {
	s.destroyOnce.Do(func() {
		s.setState(StateDestroying)
		s.cancel()
		if s.outbound != nil {
			_ = s.outbound.Close()
		}
		// Best-effort graceful shutdown; its result is deliberately ignored.
		_ = s.inbound.CloseWrite()
		_ = s.inbound.Close()
		s.log.Info(reason, zap.String("peer", s.peer))
	})
}

func portString(p uint16) string { return fmt.Sprintf("%d", p) }
