package maintenance

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/orneryd/uks/pkg/uks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *uks.Store {
	t.Helper()
	cfg := uks.DefaultConfig()
	cfg.EvictionEnabled = false
	store, err := uks.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// stubPass counts invocations and returns a fixed result.
type stubPass struct {
	name  string
	n     int
	err   error
	calls atomic.Int64
}

func (p *stubPass) Name() string { return p.name }

func (p *stubPass) Run(*uks.Store) (int, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Run("sums_pass_changes", func(t *testing.T) {
		store := newTestStore(t)
		a := &stubPass{name: "a", n: 2}
		b := &stubPass{name: "b", n: 3}
		sched := NewScheduler(store, time.Hour, nil, a, b)

		assert.Equal(t, 5, sched.RunOnce())
		assert.Equal(t, int64(1), a.calls.Load())
		assert.Equal(t, int64(1), b.calls.Load())
	})

	t.Run("a_failing_pass_does_not_stop_the_rest", func(t *testing.T) {
		store := newTestStore(t)
		bad := &stubPass{name: "bad", n: 7, err: errors.New("boom")}
		good := &stubPass{name: "good", n: 3}
		sched := NewScheduler(store, time.Hour, nil, bad, good)

		assert.Equal(t, 3, sched.RunOnce())
		assert.Equal(t, int64(1), good.calls.Load())
	})
}

func TestScheduler_StartStop(t *testing.T) {
	store := newTestStore(t)
	pass := &stubPass{name: "tick", n: 1}
	sched := NewScheduler(store, 10*time.Millisecond, nil, pass)

	sched.Start()
	assert.Eventually(t, func() bool {
		return pass.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	sched.Stop()
	after := pass.calls.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, pass.calls.Load())

	// A stopped scheduler refuses to restart.
	sched.Start()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, pass.calls.Load())
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	store := newTestStore(t)
	sched := NewScheduler(store, time.Second, nil)
	sched.Stop()
	sched.Stop()
}
