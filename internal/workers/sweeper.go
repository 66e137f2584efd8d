// Package workers provides background worker goroutines.
package workers

import (
	"context"
	"time"

	"github.com/example/visitbook/internal/engine"
	"github.com/example/visitbook/internal/util"
)

// Sweeper periodically runs the engine's maintenance pass: expiring stale
// pending bookings and retrying missing holds.
type Sweeper struct {
	engine   *engine.Engine
	interval time.Duration
}

// NewSweeper creates a new maintenance sweeper.
func NewSweeper(eng *engine.Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Sweeper{engine: eng, interval: interval}
}

// Start runs the sweeper until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	util.Info("Starting maintenance sweeper", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.engine.RunMaintenance(ctx)

	for {
		select {
		case <-ctx.Done():
			util.Info("Maintenance sweeper stopping")
			return
		case <-ticker.C:
			s.engine.RunMaintenance(ctx)
		}
	}
}
