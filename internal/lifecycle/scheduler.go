package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs the TTL sweep and the reindex check on a fixed interval.
// Reindexing itself is never triggered automatically; the check only
// logs, and an operator decides when to pay the re-embedding cost.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler builds a scheduler from the configured check interval.
func NewScheduler(manager *Manager, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	interval := time.Duration(manager.cfg.Lifecycle.ReindexCheckIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the background loop. Starting a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
	s.logger.Info("lifecycle scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for the current tick to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("lifecycle scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes one sweep. Errors are logged and swallowed so a bad
// tick never kills the loop.
func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.manager.CleanupExpired(ctx, TargetAll)
	if err != nil {
		s.logger.Warn("ttl sweep failed", "error", err)
	} else if report.TotalDeleted > 0 {
		s.logger.Info("ttl sweep removed expired entries", "count", report.TotalDeleted)
	}

	status, err := s.manager.CheckReindexNeeded(ctx)
	if err != nil {
		s.logger.Warn("reindex check failed", "error", err)
		return
	}
	if status.NeedsReindex {
		for target, col := range status.Collections {
			if col.NeedsReindex {
				s.logger.Warn("collection needs reindexing",
					"collection", target, "stored", col.StoredSignature, "current", col.CurrentSignature)
			}
		}
	}
}
