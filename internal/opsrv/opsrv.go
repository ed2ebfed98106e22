// Package opsrv is the loopback-only operational HTTP surface: health,
// readiness, and Prometheus metrics. Deliberately kept off the public TLS
// port so it can't itself become a fingerprint for anyone probing the
// relay's listener.
package opsrv

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /healthz, /readyz, and /metrics.
type Server struct {
	server *http.Server
	ready  atomic.Bool
}

// New builds a Server bound to addr, registering collectors from reg at
// /metrics.
func New(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	s := &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

// Start runs the HTTP server in the background. Listen errors are returned
// on the channel returned by Start, so the caller can decide whether a
// failed ops surface should be fatal.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// SetReady flips the /readyz response, called once the TLS listener is
// bound and accepting.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
