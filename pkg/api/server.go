// Package api exposes commyd's control-plane HTTP surface: service
// registration/discovery/routing against the Mesh Coordinator, and
// shared-file request/disconnect against the Shared-File Manager.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/commyio/commy/pkg/manager"
	"github.com/commyio/commy/pkg/mesh"
	"github.com/commyio/commy/pkg/transport"
)

// Config holds the control-plane server's tunables.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AuthSecret   string
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
}

// Server is the control-plane HTTP server fronting a MeshCoordinator and
// SharedFileManager.
type Server struct {
	server *http.Server
}

// NewServer builds a Server wrapping a chi router over coordinator, mgr,
// and the transport router used to execute file I/O operations.
func NewServer(cfg Config, coordinator *mesh.MeshCoordinator, mgr *manager.SharedFileManager, router *transport.Router) *Server {
	cfg.applyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      newRouter(coordinator, mgr, router, cfg.AuthSecret),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// ListenAndServe starts serving and blocks until the server exits.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
