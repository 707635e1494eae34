// Package api exposes the HTTP and WebSocket surface: query processing,
// session state, agent administration, knowledge search, metrics, and the
// realtime event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/agents"
	"github.com/ensembleworks/ensemble/pkg/coordinator"
	"github.com/ensembleworks/ensemble/pkg/knowledge"
	"github.com/ensembleworks/ensemble/pkg/memory"
	"github.com/ensembleworks/ensemble/pkg/metrics"
	"github.com/ensembleworks/ensemble/pkg/realtime"
)

// Retriever is the knowledge search capability the API exposes directly.
type Retriever interface {
	Retrieve(ctx context.Context, query string) *knowledge.Knowledge
}

// HealthChecker reports the health of an optional backing service.
type HealthChecker func(ctx context.Context) (any, error)

// Config tunes the server.
type Config struct {
	Host             string
	Port             int
	AllowedWSOrigins []string
}

// Dependencies groups the services the API fronts.
type Dependencies struct {
	Coordinator *coordinator.Coordinator
	Memory      *memory.Memory
	Metrics     *metrics.Store
	Registry    *agents.Registry
	Tracker     *realtime.Tracker
	Retriever   Retriever

	// DatabaseHealth is nil when running without Postgres.
	DatabaseHealth HealthChecker
}

// Server is the HTTP/WebSocket front end.
type Server struct {
	cfg  Config
	deps Dependencies
	http *http.Server
}

// NewServer creates the server and wires all routes.
func NewServer(cfg Config, deps Dependencies) *Server {
	s := &Server{cfg: cfg, deps: deps}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), securityHeaders())

	engine.GET("/health", s.health)
	engine.GET("/ws", s.websocket)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/query", s.processQuery)

		v1.GET("/sessions", s.listSessions)
		v1.GET("/sessions/active", s.activeSessions)
		v1.GET("/sessions/:id", s.sessionState)
		v1.GET("/sessions/:id/conversation", s.conversation)
		v1.POST("/sessions/:id/feedback", s.feedback)
		v1.POST("/sessions/:id/cancel", s.cancelSession)

		v1.GET("/agents", s.listAgents)
		v1.POST("/agents", s.createAgent)
		v1.PUT("/agents/:id", s.updateAgent)
		v1.DELETE("/agents/:id", s.deactivateAgent)

		v1.GET("/knowledge/search", s.searchKnowledge)

		v1.GET("/metrics/summary", s.metricsSummary)
		v1.GET("/insights", s.listInsights)
		v1.POST("/insights/:id/status", s.setInsightStatus)
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}
