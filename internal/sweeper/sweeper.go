// Package sweeper purges expired mute rows on a cron schedule. Reads already
// treat an expired mute as absent; the sweep only reclaims the rows.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"groupchat/pkg/config"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/timeutil"
)

// Purger is the store operation the sweeper drives.
type Purger interface {
	SweepExpiredMutes(ctx context.Context, now time.Time) (int, error)
}

type Sweeper struct {
	cron   string
	store  Purger
	clock  timeutil.Clock
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	runs    int
}

// New validates the cron expression and returns an idle sweeper.
func New(cfg config.SweeperConfig, store Purger, clock timeutil.Clock) (*Sweeper, error) {
	if !gronx.New().IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid sweeper cron %q", cfg.Cron)
	}
	if clock == nil {
		clock = timeutil.System
	}
	return &Sweeper{cron: cfg.Cron, store: store, clock: clock}, nil
}

// Start runs the schedule loop until ctx is done or the returned cancel is
// called. A disabled config returns a no-op cancel and a nil sweeper.
func Start(ctx context.Context, cfg config.SweeperConfig, store Purger) (*Sweeper, context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("sweeper_disabled")
		return nil, func() {}, nil
	}
	s, err := New(cfg, store, nil)
	if err != nil {
		return nil, nil, err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	logger.Info("sweeper_enabled", "cron", s.cron)
	go s.scheduleLoop()
	return s, s.cancel, nil
}

func (s *Sweeper) scheduleLoop() {
	for {
		now := s.clock.Now()
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			logger.Error("sweeper_nexttick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-s.ctx.Done():
				return
			}
			continue
		}

		wait := next.Sub(now)
		if wait <= 0 {
			s.runJob(s.ctx)
			select {
			case <-time.After(time.Second):
			case <-s.ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			s.runJob(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// runJob skips when a run is already in progress.
func (s *Sweeper) runJob(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		logger.Error("sweeper_run_error", "error", err)
	}
}

// RunOnce purges now and returns the number of rows removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	runID := fmt.Sprintf("run-%d", now.UnixNano())
	logger.Info("sweeper_run_start", "run_id", runID)
	n, err := s.store.SweepExpiredMutes(ctx, now)
	if err != nil {
		return n, fmt.Errorf("sweep expired mutes: %w", err)
	}
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	logger.Info("sweeper_run_done", "run_id", runID, "purged", n)
	return n, nil
}

// Runs counts completed sweeps.
func (s *Sweeper) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
