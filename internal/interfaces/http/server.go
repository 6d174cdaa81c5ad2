// Package http exposes the demande workflow over a JSON API.
// Handlers only translate requests into engine and service calls.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/demande-workflow/internal/application/service"
	"github.com/garyjia/demande-workflow/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HealthChecker reports whether the backing store is reachable. *sql.DB satisfies it.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownGrace bounds how long in-flight requests may finish once Start's context ends.
	ShutdownGrace time.Duration

	// JWTSecret verifies HS256 bearer tokens. Token issuance happens elsewhere.
	JWTSecret string
	Debug     bool
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		ShutdownGrace: 10 * time.Second,
	}
}

// Server serves the demande API
type Server struct {
	config ServerConfig
	router *gin.Engine
	logger Logger
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

// NewServer wires the handlers onto a fresh router. health may be nil.
func NewServer(
	config ServerConfig,
	engine workflow.Engine,
	demandeService service.DemandeService,
	health HealthChecker,
	logger Logger,
) *Server {
	mode := gin.ReleaseMode
	if config.Debug {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	s := &Server{config: config, router: gin.New(), logger: logger}
	s.router.Use(gin.Recovery(), requestIDMiddleware(), s.loggingMiddleware(), corsMiddleware())

	h := NewHandlers(engine, demandeService, health, logger)
	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1", jwtAuthMiddleware(config.JWTSecret))
	for _, r := range demandeRoutes(h) {
		api.Handle(r.method, r.path, r.handler)
	}
	return s
}

func demandeRoutes(h *Handlers) []route {
	return []route{
		{http.MethodPost, "/demandes", h.CreateDemande},
		{http.MethodGet, "/demandes", h.ListDemandes},
		{http.MethodGet, "/demandes/:id", h.GetDemande},
		{http.MethodPatch, "/demandes/:id", h.ModifyDemande},
		{http.MethodDelete, "/demandes/:id", h.DeleteDemande},
		{http.MethodPost, "/demandes/:id/submit", h.SubmitDemande},
		{http.MethodPost, "/demandes/:id/actions/:action", h.Act},
		{http.MethodPost, "/demandes/:id/deliveries", h.RecordDelivery},
		{http.MethodGet, "/demandes/:id/deliveries", h.ListDeliveries},
		{http.MethodPut, "/demandes/:id/prices", h.SetPrices},
		{http.MethodGet, "/demandes/:id/history", h.GetHistory},
		{http.MethodGet, "/demandes/:id/signatures", h.GetSignatures},
	}
}

// Start binds the listener and serves until ctx is cancelled, then drains
// in-flight requests. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the API on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("HTTP server listening", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("HTTP server error", "error", err)
		return err
	case <-ctx.Done():
	}

	grace := s.config.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
