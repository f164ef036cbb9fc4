// Package expiry runs the background sweep that ages transient knowledge
// out of a store.
//
// The manager is deliberately dumb: it owns a ticker and a goroutine, and
// on every tick it calls the sweep function it was started with. What
// "expired" means (sliding windows, usage clocks) belongs to the caller;
// this package only guarantees the cadence and a clean shutdown.
//
// Example Usage:
//
//	mgr := expiry.New(time.Second, logger)
//	mgr.Start(store.EvictExpired)
//	defer mgr.Stop() // blocks until the sweep goroutine exits
package expiry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager drives a periodic sweep on its own goroutine.
type Manager struct {
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a manager ticking at interval. A nil logger means silent.
func New(interval time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep goroutine. sweep runs once per interval and
// returns how many entries it removed; the count is logged at debug level.
// Start is a no-op on a manager that is already running or stopped.
func (m *Manager) Start(sweep func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.ctx.Err() != nil {
		return
	}
	m.running = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.log.Debug("expiry sweep started", zap.Duration("interval", m.interval))
		for {
			select {
			case <-m.ctx.Done():
				m.log.Debug("expiry sweep stopped")
				return
			case <-ticker.C:
				if n := sweep(); n > 0 {
					m.log.Debug("expiry sweep pass", zap.Int("removed", n))
				}
			}
		}
	}()
}

// Stop cancels the sweep and blocks until the goroutine has exited. Safe to
// call more than once and before Start.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// Running reports whether the sweep goroutine is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.ctx.Err() == nil
}
