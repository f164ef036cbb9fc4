package expiry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManager_SweepCadence(t *testing.T) {
	var calls atomic.Int64
	mgr := New(10*time.Millisecond, zap.NewNop())
	mgr.Start(func() int {
		calls.Add(1)
		return 1
	})
	defer mgr.Stop()

	assert.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, mgr.Running())
}

func TestManager_StopBlocksUntilExit(t *testing.T) {
	var calls atomic.Int64
	mgr := New(5*time.Millisecond, nil)
	mgr.Start(func() int {
		calls.Add(1)
		return 0
	})

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, time.Millisecond)

	mgr.Stop()
	assert.False(t, mgr.Running())

	// No ticks land after Stop returns.
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestManager_StartIsIdempotent(t *testing.T) {
	var calls atomic.Int64
	mgr := New(5*time.Millisecond, nil)
	sweep := func() int {
		calls.Add(1)
		return 0
	}
	mgr.Start(sweep)
	mgr.Start(sweep)
	defer mgr.Stop()

	time.Sleep(40 * time.Millisecond)
	// A second Start must not double the cadence; with two goroutines this
	// window would see roughly twice as many ticks.
	assert.LessOrEqual(t, calls.Load(), int64(12))
}

func TestManager_StopBeforeStart(t *testing.T) {
	mgr := New(time.Second, nil)
	mgr.Stop()
	mgr.Stop()
	assert.False(t, mgr.Running())

	// A stopped manager refuses to start again.
	mgr.Start(func() int { return 0 })
	assert.False(t, mgr.Running())
}
