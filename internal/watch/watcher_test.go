package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/vibe/internal/input"
)

type collector struct {
	mu    sync.Mutex
	names []string
	seen  chan string
	err   error
}

func newCollector() *collector { return &collector{seen: make(chan string, 16)} }

func (c *collector) process(_ context.Context, f input.File) error {
	c.mu.Lock()
	c.names = append(c.names, f.Name)
	c.mu.Unlock()
	c.seen <- f.Name
	return c.err
}

func startWatcher(t *testing.T, dir string, c *collector) (context.CancelFunc, <-chan error) {
	t.Helper()
	w := New(Options{Dir: dir, Debounce: 100 * time.Millisecond, Sandboxed: true, Process: c.process})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("watcher not ready")
	}
	return cancel, done
}

func waitName(t *testing.T, c *collector) string {
	t.Helper()
	select {
	case n := <-c.seen:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for processed file")
		return ""
	}
}

func TestWatcher_ProcessesNewFilesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()
	cancel, done := startWatcher(t, dir, c)
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))

	first := waitName(t, c)
	second := waitName(t, c)
	assert.Equal(t, []string{"a.txt", "b.txt"}, []string{first, second})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_IgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()
	cancel, _ := startWatcher(t, dir, c)
	defer cancel()

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "z.txt"), []byte("z"), 0644))

	assert.Equal(t, "z.txt", waitName(t, c))
}

func TestWatcher_ProcessErrorStops(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()
	c.err = errors.New("agent failed")
	cancel, done := startWatcher(t, dir, c)
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("f"), 0644))
	waitName(t, c)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent failed")
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on process error")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(Options{Dir: filepath.Join(t.TempDir(), "missing"), Process: newCollector().process})
	err := w.Run(context.Background())
	require.Error(t, err)
}

func TestWatcher_ProcessesFilesMissedBeforeWatching(t *testing.T) {
	dir := t.TempDir()
	handled := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(handled, []byte("a"), 0644))
	// arrived while the initial pass was still running
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))

	c := newCollector()
	w := New(Options{Dir: dir, Debounce: 50 * time.Millisecond, Sandboxed: true, Process: c.process, Known: []string{handled}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Equal(t, "b.txt", waitName(t, c))

	<-w.Ready()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("c"), 0644))
	assert.Equal(t, "c.txt", waitName(t, c), "known file must not be fed again")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
