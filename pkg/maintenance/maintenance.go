// Package maintenance implements the grooming passes that keep a growing
// knowledge store compact and balanced: splitting overloaded parents,
// pruning facts already implied by inheritance, carving shared attributes
// into subclasses, and bubbling child attributes up to parents.
//
// Every pass works exclusively through the public store API, so a pass can
// run against a live store while other goroutines keep mutating it. Passes
// are idempotent enough to run on a schedule: a pass that finds nothing to
// do reports zero changes.
//
// Example Usage:
//
//	sched := maintenance.NewScheduler(store, 10*time.Second, logger,
//		maintenance.NewTreeBalancer(6),
//		maintenance.NewRedundancyPruner(),
//	)
//	sched.Start()
//	defer sched.Stop()
package maintenance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/uks/pkg/uks"
)

// Pass is one grooming strategy. Run applies it once and reports how many
// changes (edges created, weakened, moved or removed) it made.
type Pass interface {
	Name() string
	Run(store *uks.Store) (int, error)
}

// Scheduler drives a set of passes on a shared ticker.
type Scheduler struct {
	store    *uks.Store
	interval time.Duration
	passes   []Pass
	log      *zap.Logger

	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler over store running passes every interval.
// A nil logger means silent.
func NewScheduler(store *uks.Store, interval time.Duration, log *zap.Logger, passes ...Pass) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		interval: interval,
		passes:   passes,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the grooming goroutine. No-op if already running or
// stopped.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.ctx.Err() != nil {
		return
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("maintenance scheduler started",
			zap.Duration("interval", s.interval), zap.Int("passes", len(s.passes)))
		for {
			select {
			case <-s.ctx.Done():
				s.log.Info("maintenance scheduler stopped")
				return
			case <-ticker.C:
				s.RunOnce()
			}
		}
	}()
}

// RunOnce applies every pass once, in registration order, and returns the
// total change count. Callable directly for one-shot grooming (CLI, tests).
func (s *Scheduler) RunOnce() int {
	total := 0
	for _, pass := range s.passes {
		n, err := pass.Run(s.store)
		if err != nil {
			s.log.Warn("maintenance pass failed",
				zap.String("pass", pass.Name()), zap.Error(err))
			continue
		}
		if n > 0 {
			s.log.Debug("maintenance pass done",
				zap.String("pass", pass.Name()), zap.Int("changes", n))
		}
		total += n
	}
	return total
}

// Stop cancels the grooming goroutine and blocks until it exits. Safe to
// call more than once and before Start.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
