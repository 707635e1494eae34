// Package cleanup provides data retention enforcement for in-memory state.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/ensembleworks/ensemble/pkg/memory"
)

// Service periodically prunes idle conversation sessions past their TTL.
// Closed realtime sessions are swept by the tracker's own Run loop; this
// service owns conversation memory only. All operations are idempotent.
type Service struct {
	memory     *memory.Memory
	sessionTTL time.Duration
	interval   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(mem *memory.Memory, sessionTTL, interval time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Service{
		memory:     mem,
		sessionTTL: sessionTTL,
		interval:   interval,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_ttl", s.sessionTTL,
		"interval", s.interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.pruneSessions()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneSessions()
		}
	}
}

func (s *Service) pruneSessions() {
	count := s.memory.Prune(s.sessionTTL)
	if count > 0 {
		slog.Info("Retention: pruned idle sessions", "count", count)
	}
}
