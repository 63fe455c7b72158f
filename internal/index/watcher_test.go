package index

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/cursor-history/internal/testjsonl"
	"github.com/wesm/cursor-history/internal/tracking"
)

// runTestWatcher watches a fresh temp dir and reports settled
// batches on the returned channel until the test ends.
func runTestWatcher(
	t *testing.T, debounce time.Duration,
) (*treeWatcher, string, <-chan int) {
	t.Helper()
	dir := t.TempDir()
	batches := make(chan int, 16)
	w, err := newTreeWatcher(debounce, func(n int) {
		select {
		case batches <- n:
		default:
		}
	})
	require.NoError(t, err)
	_, _, err = w.addTree(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, dir, batches
}

func waitBatch(t *testing.T, batches <-chan int) int {
	t.Helper()
	select {
	case n := <-batches:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settled batch")
		return 0
	}
}

// pollUntil polls fn until it returns true or the timeout expires.
func pollUntil(t *testing.T, timeout time.Duration, msg string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !fn() {
		t.Fatal(msg)
	}
}

func TestTreeWatcherReportsTranscriptWrites(t *testing.T) {
	_, dir, batches := runTestWatcher(t, 30*time.Millisecond)

	path := filepath.Join(dir, "s1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	assert.Positive(t, waitBatch(t, batches))
}

func TestTreeWatcherCoalescesBurst(t *testing.T) {
	_, dir, batches := runTestWatcher(t, 300*time.Millisecond)

	for i := range 5 {
		name := filepath.Join(dir, string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("user:\nhi\n"), 0o644))
	}

	n := waitBatch(t, batches)
	assert.GreaterOrEqual(t, n, 5, "burst should settle as one batch")
	select {
	case extra := <-batches:
		t.Fatalf("unexpected second batch of %d events", extra)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestTreeWatcherAddsNewDirs(t *testing.T) {
	w, dir, batches := runTestWatcher(t, 30*time.Millisecond)

	project := filepath.Join(dir, "Users-alice-app")
	require.NoError(t, os.Mkdir(project, 0o755))
	waitBatch(t, batches)

	pollUntil(t, 5*time.Second, "new directory was not watched", func() bool {
		return slices.Contains(w.fsw.WatchList(), project)
	})

	nested := filepath.Join(project, "s2.jsonl")
	require.NoError(t, os.WriteFile(nested, []byte("{}\n"), 0o644))
	assert.Positive(t, waitBatch(t, batches))
}

func TestTreeWatcherStopsOnCancel(t *testing.T) {
	w, err := newTreeWatcher(time.Second, func(int) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRelevantEvents(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "agent-transcripts")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w, err := newTreeWatcher(time.Second, func(int) {})
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"jsonl write", fsnotify.Event{Name: "/p/s.jsonl", Op: fsnotify.Write}, true},
		{"txt create", fsnotify.Event{Name: "/p/s.txt", Op: fsnotify.Create}, true},
		{"transcript removed", fsnotify.Event{Name: "/p/s.jsonl", Op: fsnotify.Remove}, true},
		{"transcript renamed", fsnotify.Event{Name: "/p/s.txt", Op: fsnotify.Rename}, true},
		{"chmod only", fsnotify.Event{Name: "/p/s.jsonl", Op: fsnotify.Chmod}, false},
		{"other file write", fsnotify.Event{Name: "/p/notes.md", Op: fsnotify.Write}, false},
		{"other file removed", fsnotify.Event{Name: "/p/notes.md", Op: fsnotify.Remove}, false},
		{"dir removed", fsnotify.Event{Name: "/p/Users-bob-api", Op: fsnotify.Remove}, true},
		{"dir created", fsnotify.Event{Name: sub, Op: fsnotify.Create}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
	assert.Contains(t, w.fsw.WatchList(), sub, "created dir should be watched")
}

func TestWatchCacheRebuildsOnChange(t *testing.T) {
	tr := newTestTree(t)
	tr.seedStandard(testBase)
	c := newTestCache(t, tr, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rebuilt := make(chan Index, 4)
	var failures atomic.Int32
	errc := make(chan error, 1)
	go func() {
		errc <- WatchCache(ctx, c, 20*time.Millisecond,
			func(idx Index, err error) {
				if err != nil {
					failures.Add(1)
					return
				}
				select {
				case rebuilt <- idx:
				default:
				}
			})
	}()

	// Keep writing until the watcher has registered the tree and
	// picked up a change.
	deadline := time.After(5 * time.Second)
	var got Index
	for {
		tr.transcript("Users-bob-api", "live.jsonl",
			testjsonl.JoinJSONL(testjsonl.CursorUserJSON("live")),
			time.Now())
		select {
		case got = <-rebuilt:
		case <-time.After(100 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("timed out waiting for rebuild")
		}
		break
	}
	assert.Contains(t, sessionIDs(got.Sessions), "live")
	assert.Zero(t, failures.Load())

	loaded, err := c.Load()
	require.NoError(t, err)
	assert.Contains(t, sessionIDs(loaded.Sessions), "live")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WatchCache did not return after cancel")
	}
}

func TestWatchCacheMissingRoot(t *testing.T) {
	base := t.TempDir()
	c := NewCache(filepath.Join(base, "index.json"),
		NewBuilder([]string{filepath.Join(base, "absent")}), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, WatchCache(ctx, c, 0, nil))
}

func TestWatchCacheAttributesNewSessions(t *testing.T) {
	tr := newTestTree(t)
	tr.seedStandard(testBase)

	var mu sync.Mutex
	rows := map[string]tracking.Attribution{}
	b := tr.builder(WithAttributionSource(func(context.Context) Attributor {
		mu.Lock()
		defer mu.Unlock()
		return tracking.FromMap(maps.Clone(rows))
	}))
	c := NewCache(filepath.Join(t.TempDir(), "index.json"), b, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := c.Rebuild(ctx)
	require.NoError(t, err)

	rebuilt := make(chan Index, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- WatchCache(ctx, c, 20*time.Millisecond,
			func(idx Index, err error) {
				if err != nil {
					return
				}
				select {
				case rebuilt <- idx:
				default:
				}
			})
	}()

	mu.Lock()
	rows["late"] = tracking.Attribution{Model: "gpt-5", CodeEdits: 1}
	mu.Unlock()

	deadline := time.After(5 * time.Second)
	var late *Session
	for late == nil {
		tr.transcript("Users-bob-api", "late.jsonl",
			testjsonl.JoinJSONL(testjsonl.CursorUserJSON("late")),
			time.Now())
		select {
		case idx := <-rebuilt:
			for i := range idx.Sessions {
				if idx.Sessions[i].ID == "late" {
					late = &idx.Sessions[i]
				}
			}
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for rebuild")
		}
	}
	assert.Equal(t, ptr("gpt-5"), late.Model)
	assert.Equal(t, ptr(1), late.CodeEdits)

	cancel()
	require.NoError(t, <-errc)
}
