package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mtoso/shadowline/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
lessons:
  source: file
  dir: ./lessons
scoring:
  base_url: http://localhost:8090
`

const watcherUpdatedYAML = `
server:
  log_level: debug
lessons:
  source: file
  dir: ./lessons
scoring:
  base_url: http://localhost:8090
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// watchFixture is a running watcher over a temp config file, recording
// every onChange invocation.
type watchFixture struct {
	t       *testing.T
	path    string
	watcher *config.Watcher

	mu      sync.Mutex
	changes [][2]*config.Config
	fired   chan struct{}
}

func newWatchFixture(t *testing.T) *watchFixture {
	t.Helper()

	f := &watchFixture{
		t:     t,
		path:  filepath.Join(t.TempDir(), "config.yaml"),
		fired: make(chan struct{}, 8),
	}
	f.write(watcherValidYAML)

	w, err := config.NewWatcher(f.path, func(old, new *config.Config) {
		f.mu.Lock()
		f.changes = append(f.changes, [2]*config.Config{old, new})
		f.mu.Unlock()
		f.fired <- struct{}{}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	f.watcher = w
	t.Cleanup(w.Stop)
	return f
}

func (f *watchFixture) write(content string) {
	f.t.Helper()
	if err := os.WriteFile(f.path, []byte(content), 0o644); err != nil {
		f.t.Fatalf("write config: %v", err)
	}
}

func (f *watchFixture) changeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.changes)
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t)

	cfg := f.watcher.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t)

	// Let the first poll record the current mtime, then rewrite.
	time.Sleep(100 * time.Millisecond)
	f.write(watcherUpdatedYAML)

	select {
	case <-f.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not invoked within timeout")
	}

	f.mu.Lock()
	old, new := f.changes[0][0], f.changes[0][1]
	f.mu.Unlock()

	if old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want %q", old.Server.LogLevel, config.LogInfo)
	}
	if new.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want %q", new.Server.LogLevel, config.LogDebug)
	}
	if cur := f.watcher.Current(); cur.Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log_level = %q, want %q", cur.Server.LogLevel, config.LogDebug)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t)

	time.Sleep(100 * time.Millisecond)
	f.write(watcherInvalidYAML)
	time.Sleep(300 * time.Millisecond)

	if n := f.changeCount(); n != 0 {
		t.Errorf("onChange fired %d times for an invalid config, want 0", n)
	}
	if cur := f.watcher.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log_level = %q, want the last good %q", cur.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t)

	time.Sleep(100 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(f.path, now, now); err != nil {
		t.Fatalf("touch config: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if n := f.changeCount(); n != 0 {
		t.Errorf("onChange fired %d times for a touch-only change, want 0", n)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("NewWatcher() = nil error for a missing file, want error")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t)

	f.watcher.Stop()
	f.watcher.Stop()
}
