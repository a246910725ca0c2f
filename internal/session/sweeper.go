package session

import (
	"context"
	"time"

	"taskhive/internal/logging"
)

// Sweeper reclaims sessions whose clients never disconnected cleanly and
// whose engines never reached a terminal action. It is the backstop behind
// the SSE idle timeout.
type Sweeper struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration
	logger    logging.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewSweeper creates a sweeper that wakes every interval and tears down any
// session untouched for longer than threshold.
func NewSweeper(registry *Registry, interval, threshold time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		registry:  registry,
		interval:  interval,
		threshold: threshold,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping on each tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce tears down every stale session and returns how many were
// reclaimed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	now := s.now()
	reclaimed := 0
	for _, sess := range s.registry.Snapshot() {
		idle := now.Sub(sess.LastAccessed())
		if idle <= s.threshold {
			continue
		}
		s.logger.Warn("reclaiming stale session: id=%s idle=%s", sess.ID, idle)
		if s.registry.DeleteIfExists(ctx, sess.ID, "stale") {
			reclaimed++
		}
	}
	return reclaimed
}
