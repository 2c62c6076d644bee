// SPDX-License-Identifier: GPL-3.0-or-later

package promexport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/meterflow/meterflow/logger"
	"github.com/meterflow/meterflow/pkg/meter"
	"github.com/sourcegraph/conc"
)

const (
	defaultListenAddr  = "0.0.0.0:2091"
	defaultMetricsPath = "/metrics"

	shutdownTimeout = 5 * time.Second
)

// Router accepts handler registrations, the shape *http.ServeMux provides.
type Router interface {
	Handle(pattern string, handler http.Handler)
}

// Handler returns the scrape endpoint handler: every request gets a fresh
// snapshot encoded as exposition text.
func Handler(reg *meter.Registry) http.Handler {
	if reg == nil {
		reg = meter.Default
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, Encode(reg.Snapshot()))
	})
}

// Mount registers the scrape handler on an externally owned router instead
// of opening a listener. An empty path means /metrics.
func Mount(reg *meter.Registry, path string, r Router) {
	if path == "" {
		path = defaultMetricsPath
	}
	r.Handle(path, Handler(reg))
}

// ServerConfig is the standalone pull endpoint: where to listen and which
// path serves metrics.
type ServerConfig struct {
	Address string `yaml:"address,omitempty" json:"address"`
	Path    string `yaml:"path,omitempty" json:"path"`
}

// Server is a minimal standalone scrape listener: 200 with exposition text
// on the configured path, 404 anywhere else.
type Server struct {
	*logger.Logger

	addr string
	path string
	srv  *http.Server
	wg   conc.WaitGroup
}

// NewServer binds the listener and starts serving. A nil registry means the
// package default one.
func NewServer(reg *meter.Registry, cfg ServerConfig) (*Server, error) {
	addr := cfg.Address
	if addr == "" {
		addr = defaultListenAddr
	}
	path := cfg.Path
	if path == "" {
		path = defaultMetricsPath
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("promexport: listen on %s: %w", addr, err)
	}

	s := &Server{
		Logger: logger.New().With(
			slog.String("component", "prometheus export"),
			slog.String("address", ln.Addr().String()),
		),
		addr: ln.Addr().String(),
		path: path,
	}

	metrics := Handler(reg)
	s.srv = &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			metrics.ServeHTTP(w, r)
		}),
	}

	s.wg.Go(func() {
		s.Infof("serving metrics at http://%s%s", s.addr, path)
		defer s.Info("stopped")
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Error(err)
		}
	})

	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.addr }

// Stop shuts the listener down, letting in-flight scrapes finish.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		s.Error(err)
	}
	s.wg.Wait()
}
