package background

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is any component with periodic expiry work: the session
// manager, the OTP gateway, or anything else that accumulates dated state.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepManager periodically runs every registered sweep, bounding memory
// growth from sessions and challenges that are never touched again.
type SweepManager struct {
	targets  map[string]Sweepable
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweepManager creates a sweep manager with the given tick interval.
func NewSweepManager(logger *slog.Logger, interval time.Duration) *SweepManager {
	return &SweepManager{
		targets:  make(map[string]Sweepable),
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Register adds a sweep target under a name used in logs.
func (sm *SweepManager) Register(name string, target Sweepable) {
	sm.targets[name] = target
}

// Start begins the periodic sweep loop. Blocks until Stop is called or
// the context is cancelled, so run it on its own goroutine.
func (sm *SweepManager) Start(ctx context.Context) {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	sm.runSweeps(ctx)

	for {
		select {
		case <-ticker.C:
			sm.runSweeps(ctx)
		case <-sm.stopCh:
			sm.logger.Info("sweep manager stopped")
			return
		case <-ctx.Done():
			sm.logger.Info("sweep manager context cancelled")
			return
		}
	}
}

func (sm *SweepManager) runSweeps(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for name, target := range sm.targets {
		removed, err := target.Sweep(sweepCtx)
		if err != nil {
			sm.logger.Error("sweep failed",
				slog.String("target", name),
				slog.Any("error", err))
			continue
		}
		if removed > 0 {
			sm.logger.Info("sweep completed",
				slog.String("target", name),
				slog.Int("removed", removed))
		}
	}
}

// Stop signals the sweep loop to exit.
func (sm *SweepManager) Stop() {
	close(sm.stopCh)
}
