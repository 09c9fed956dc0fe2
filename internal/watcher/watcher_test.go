package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/perfguard/internal/logging"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestConvertOp(t *testing.T) {
	assert.Equal(t, EventTypeCreated, convertOp(fsnotify.Create|fsnotify.Write))
	assert.Equal(t, EventTypeModified, convertOp(fsnotify.Write))
	assert.Equal(t, EventTypeDeleted, convertOp(fsnotify.Remove))
	assert.Equal(t, EventTypeRenamed, convertOp(fsnotify.Rename))
	assert.Equal(t, EventTypeModified, convertOp(fsnotify.Chmod))
}

func TestFilters(t *testing.T) {
	output := OutputFilter(".optimized")
	testCases := []struct {
		path   string
		html   bool
		output bool
		hidden bool
		git    bool
	}{
		{path: "site/index.html", html: true, output: true, hidden: true, git: true},
		{path: "site/menu.HTM", html: true, output: true, hidden: true, git: true},
		{path: "site/index.optimized.html", html: true, output: false, hidden: true, git: true},
		{path: "site/.index.html.swp", html: false, output: true, hidden: false, git: true},
		{path: "site/index.html~", html: false, output: true, hidden: false, git: true},
		{path: "site/styles.css", html: false, output: true, hidden: true, git: true},
		{path: ".git/index.html", html: true, output: true, hidden: true, git: false},
		{path: "repo/.git/HEAD", html: false, output: true, hidden: true, git: false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.html, HTMLFilter(tc.path), "html")
			assert.Equal(t, tc.output, output(tc.path), "output")
			assert.Equal(t, tc.hidden, NoHiddenFilter(tc.path), "hidden")
			assert.Equal(t, tc.git, NoGitFilter(tc.path), "git")
		})
	}
}

func TestDebouncer(t *testing.T) {
	debouncer := newDebouncer(30 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	debouncer.events <- ChangeEvent{Path: "b.html", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "b.html", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "a.html", Type: EventTypeModified}

	select {
	case batch := <-debouncer.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "a.html", batch[0].Path)
		assert.Equal(t, "b.html", batch[1].Path)
		assert.Equal(t, EventTypeModified, batch[1].Type, "latest event per path wins")
	case <-time.After(2 * time.Second):
		t.Fatal("no debounced batch")
	}
}

func TestAddPathValidation(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, logging.NewNopLogger())
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Error(t, watcher.AddPath(""))
	assert.Error(t, watcher.AddPath(filepath.Join(t.TempDir(), "missing")))
	assert.NoError(t, watcher.AddPath(t.TempDir()))
}

func TestStopIsIdempotent(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestWatchHTMLChanges(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cache"), 0o755))

	watcher, err := NewFileWatcher(30*time.Millisecond, logging.NewNopLogger())
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(HTMLFilter)
	watcher.AddFilter(OutputFilter(".optimized"))

	var mu sync.Mutex
	var seen []string
	watcher.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			seen = append(seen, filepath.Base(e.Path))
		}
		return nil
	})

	require.NoError(t, watcher.AddRecursive(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "menu.html"), []byte("<p>menu</p>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "menu.optimized.html"), []byte("<p>out</p>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("x"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, name := range seen {
		assert.Equal(t, "menu.html", name)
	}
}
