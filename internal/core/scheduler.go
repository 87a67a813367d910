package core

// scheduler.go closes sessions that have been idle for longer than the
// configured timeout. The sweeper is long-running and stops with its context.

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs SweepIdle every interval until ctx is cancelled.
// It does nothing when the service has no idle timeout.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if s.opts.IdleTimeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("session sweeper started",
		"interval", interval.String(),
		"idle_timeout", s.opts.IdleTimeout.String(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.SweepIdle(ctx)
		}
	}
}

// SweepIdle closes every session unused for longer than the idle timeout and
// returns how many were closed.
func (s *Service) SweepIdle(ctx context.Context) int {
	if s.opts.IdleTimeout <= 0 {
		return 0
	}
	start := time.Now()
	cutoff := s.now().Add(-s.opts.IdleTimeout)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		sess.unsubscribe()
	}

	if len(expired) > 0 {
		slog.InfoContext(ctx, "idle sessions closed",
			"closed", len(expired),
			"remaining", remaining,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return len(expired)
}
