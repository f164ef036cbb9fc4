package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs w.Watch on its own goroutine and stops it at test end.
// A short sleep gives the directory watch time to register before the test
// starts writing.
func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not exit on cancel")
		}
	})
}

func TestWatcher_FiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var hits atomic.Int64
	w := New(path, func() { hits.Add(1) }, nil).WithDebounce(20 * time.Millisecond)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(path, []byte(`{"things":[]}`), 0o644))

	assert.Eventually(t, func() bool {
		return hits.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	w := New(path, func() {}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit on cancel")
	}
}

func TestWatcher_SeesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var hits atomic.Int64
	w := New(path, func() { hits.Add(1) }, nil).WithDebounce(20 * time.Millisecond)
	startWatcher(t, w)

	// Editor-style save: write a temp file, rename it over the target.
	tmp := filepath.Join(dir, ".graph.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"things":[]}`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool {
		return hits.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var hits atomic.Int64
	w := New(path, func() { hits.Add(1) }, nil).WithDebounce(150 * time.Millisecond)
	startWatcher(t, w)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return hits.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int64(1), hits.Load())
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var hits atomic.Int64
	w := New(path, func() { hits.Add(1) }, nil).WithDebounce(20 * time.Millisecond)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(0), hits.Load())

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	assert.Eventually(t, func() bool {
		return hits.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", "graph.json")
	w := New(path, func() {}, nil)

	err := w.Watch(context.Background())
	assert.Error(t, err)
}

func TestWatcher_DefaultDebounce(t *testing.T) {
	w := New("x", func() {}, nil)
	assert.Equal(t, 500*time.Millisecond, w.debounce)
	assert.Equal(t, 20*time.Millisecond, w.WithDebounce(20*time.Millisecond).debounce)
}
