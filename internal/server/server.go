package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apisetup "call-relay/internal/api"
	"call-relay/internal/bootstrap"
	"call-relay/internal/config"
	"call-relay/internal/observability"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	deps       *bootstrap.Dependencies
	config     *config.Config
	logger     *observability.Logger
	serveErr   chan error
}

// New creates a new Server instance
func New(cfg *config.Config, deps *bootstrap.Dependencies, logger *observability.Logger) *Server {
	return &Server{
		config:   cfg,
		deps:     deps,
		logger:   logger,
		serveErr: make(chan error, 1),
	}
}

// Setup configures the HTTP router with middleware and routes
func (s *Server) Setup() {
	if os.Getenv("GO_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	if len(s.config.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.Server.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}

	s.router.Use(cors.New(corsConfig))
	s.router.Use(observability.Middleware(s.logger))

	api := apisetup.New(s.router.Group("/"), s.deps.VoiceCallHandler)
	api.RegisterRoutes()
}

// Start binds the listening socket and serves in the background. The server
// accepts connections once Start returns.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info(ctx, fmt.Sprintf("Server is listening on port %d", s.config.Server.Port))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- err
		}
	}()
	return nil
}

// WaitForShutdown blocks until a shutdown signal, ctx cancellation or a
// serve failure, then shuts down gracefully.
func (s *Server) WaitForShutdown(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
	case <-ctx.Done():
	case serveErr = <-s.serveErr:
		s.logger.Error(ctx, "Server failed", serveErr)
	}
	s.logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Shutdown does not track hijacked websockets; relays are closed by
	// Cleanup.
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.deps.Cleanup(shutdownCtx)

	if serveErr != nil {
		return serveErr
	}
	s.logger.Info(ctx, "Server exited gracefully")
	return nil
}
