package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"autopatch/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watchTree(t *testing.T) (string, *config.Config) {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(cfg.Paths.ChunksDir)), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(root, filepath.FromSlash(cfg.Paths.AgentFactory))), 0o755))
	return root, cfg
}

func TestWatcher_TriggersOnChunkChange(t *testing.T) {
	root, cfg := watchTree(t)

	var scans atomic.Int32
	w := New(cfg, nil, nil, nil)
	w.SetDebounce(50 * time.Millisecond)
	w.SetScan(func(string) error {
		scans.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, root)
	}()

	// Initial scan happens before the event loop.
	require.Eventually(t, func() bool { return scans.Load() >= 1 }, time.Second, 10*time.Millisecond)

	chunk := filepath.Join(root, filepath.FromSlash(cfg.Paths.ChunksDir), "Abc123.js")
	require.NoError(t, os.WriteFile(chunk, []byte("x"), 0o644))

	require.Eventually(t, func() bool { return scans.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestWatcher_DebounceCoalescesBursts(t *testing.T) {
	root, cfg := watchTree(t)

	var scans atomic.Int32
	w := New(cfg, nil, nil, nil)
	w.SetDebounce(150 * time.Millisecond)
	w.SetScan(func(string) error {
		scans.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, root) }()

	require.Eventually(t, func() bool { return scans.Load() >= 1 }, time.Second, 10*time.Millisecond)

	dir := filepath.Join(root, filepath.FromSlash(cfg.Paths.ChunksDir))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Burst.js"), []byte{byte(i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(2), scans.Load())
}

func TestWatcher_IgnoresNonJS(t *testing.T) {
	root, cfg := watchTree(t)

	var scans atomic.Int32
	w := New(cfg, nil, nil, nil)
	w.SetDebounce(50 * time.Millisecond)
	w.SetScan(func(string) error {
		scans.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, root) }()

	require.Eventually(t, func() bool { return scans.Load() >= 1 }, time.Second, 10*time.Millisecond)

	dir := filepath.Join(root, filepath.FromSlash(cfg.Paths.ChunksDir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), scans.Load())
}
