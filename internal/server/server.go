// Package server exposes the HTTP and WebSocket surface: session CRUD,
// message turns, attachment uploads, the catalog view and the realtime
// push channel.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quarterwave/parley/internal/blob"
	"github.com/quarterwave/parley/internal/catalog"
	"github.com/quarterwave/parley/internal/chat"
	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/identity"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/probe"
	"github.com/quarterwave/parley/internal/push"
	"gorm.io/gorm"
)

// Server wires the HTTP surface to its collaborators.
type Server struct {
	db           *gorm.DB
	cfg          *config.Config
	orchestrator *chat.Orchestrator
	hub          *push.Hub
	refresher    *catalog.Refresher
	prober       *probe.Prober
	registry     *llm.Registry
	creds        llm.CredentialSource
	blobs        blob.Store
	identity     identity.Resolver
}

// Opts holds parameters for creating a Server.
type Opts struct {
	DB           *gorm.DB
	Config       *config.Config
	Orchestrator *chat.Orchestrator
	Hub          *push.Hub
	Refresher    *catalog.Refresher
	Prober       *probe.Prober
	Registry     *llm.Registry
	Creds        llm.CredentialSource
	Blobs        blob.Store
	Identity     identity.Resolver
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("server: orchestrator is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("server: hub is required")
	}
	if opts.Refresher == nil {
		return nil, fmt.Errorf("server: refresher is required")
	}
	if opts.Prober == nil {
		return nil, fmt.Errorf("server: prober is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("server: registry is required")
	}
	if opts.Creds == nil {
		return nil, fmt.Errorf("server: credential source is required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("server: blob store is required")
	}
	if opts.Identity == nil {
		opts.Identity = identity.TrustedResolver{}
	}
	return &Server{
		db:           opts.DB,
		cfg:          opts.Config,
		orchestrator: opts.Orchestrator,
		hub:          opts.Hub,
		refresher:    opts.Refresher,
		prober:       opts.Prober,
		registry:     opts.Registry,
		creds:        opts.Creds,
		blobs:        opts.Blobs,
		identity:     opts.Identity,
	}, nil
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	return router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
