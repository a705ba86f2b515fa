package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *events.Subscription {
	t.Helper()

	bus := events.NewBus()
	sub := bus.Subscribe(256)

	w, err := New(Config{
		Repository: "main",
		Root:       root,
		Skip:       func(name string) bool { return strings.HasPrefix(name, ".") },
	}, bus)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sub
}

func waitFor(t *testing.T, sub *events.Subscription, typ events.Type, path string) {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-sub.C:
			if e.Type == typ && e.Path == path {
				assert.Equal(t, "main", e.Repository)
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s %s", typ, path)
		}
	}
}

func TestWatcher_FileLifecycle(t *testing.T) {
	root := t.TempDir()
	sub := startWatcher(t, root)

	file := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	waitFor(t, sub, events.Changed, "/a.txt")

	require.NoError(t, os.Remove(file))
	waitFor(t, sub, events.Removed, "/a.txt")
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	sub := startWatcher(t, root)

	dir := filepath.Join(root, "images")
	require.NoError(t, os.Mkdir(dir, 0o755))
	waitFor(t, sub, events.Changed, "/images")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.tif"), []byte("x"), 0o644))
	waitFor(t, sub, events.Changed, "/images/foo.tif")
}

func TestWatcher_SkipsReservedNames(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".hidden"), 0o755))

	w, err := New(Config{
		Repository: "main",
		Root:       root,
		Skip:       func(name string) bool { return strings.HasPrefix(name, ".") },
	}, events.Discard)
	require.NoError(t, err)
	defer func() { _ = w.fsw.Close() }()

	assert.Equal(t, []string{root}, w.WatchList())

	_, ok := w.relative(filepath.Join(root, ".hidden", "x"))
	assert.False(t, ok)
	rel, ok := w.relative(filepath.Join(root, "sub", "x.png"))
	assert.True(t, ok)
	assert.Equal(t, "/sub/x.png", rel)
}
