package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/godec/config"
	"github.com/evdnx/godec/logger"
	"github.com/evdnx/godec/metrics"
)

// taskState is an explicit IDLE/RUNNING token. TryAcquire is a
// non-blocking claim: an overlapping tick is skipped, never queued.
type taskState struct {
	running atomic.Bool
}

func (t *taskState) TryAcquire() bool { return t.running.CompareAndSwap(false, true) }
func (t *taskState) Release()         { t.running.Store(false) }

// Scheduler runs the cooperative task set: the high-frequency scan, the
// medium-frequency snapshot sync and the coarse regime refresh. Each
// task owns its own overlap token; a panic in one tick is recovered and
// the task keeps its schedule.
type Scheduler struct {
	scanner *Scanner
	cfg     *config.Config
	log     logger.Logger

	scanState   taskState
	syncState   taskState
	regimeState taskState
}

func NewScheduler(scanner *Scanner, cfg *config.Config, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{scanner: scanner, cfg: cfg, log: log}
}

// Run blocks until ctx is cancelled. The initial sync and regime pass
// run up front so the first scan sees equity and a classified regime.
func (s *Scheduler) Run(ctx context.Context) {
	s.runTask(ctx, "sync", &s.syncState, s.scanner.SyncSnapshot)
	s.runTask(ctx, "regime", &s.regimeState, s.scanner.RefreshRegime)

	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		state    *taskState
		fn       func(context.Context)
	}{
		{"scan", s.cfg.ScanInterval, &s.scanState, s.scanner.ScanOnce},
		{"sync", s.cfg.SyncInterval, &s.syncState, s.scanner.SyncSnapshot},
		{"regime", s.cfg.RegimeInterval, &s.regimeState, s.scanner.RefreshRegime},
	}
	for _, l := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration, state *taskState, fn func(context.Context)) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runTask(ctx, name, state, fn)
				}
			}
		}(l.name, l.interval, l.state, l.fn)
	}
	wg.Wait()
	s.log.Info("scheduler_stopped")
}

// runTask executes one tick under the overlap token with panic
// isolation.
func (s *Scheduler) runTask(ctx context.Context, name string, state *taskState, fn func(context.Context)) {
	if ctx.Err() != nil {
		return
	}
	if !state.TryAcquire() {
		metrics.ScansSkipped.WithLabelValues(name).Inc()
		s.log.Warn("tick_skipped_overlap", logger.String("task", name))
		return
	}
	defer state.Release()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task_panicked",
				logger.String("task", name),
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn(ctx)
}
