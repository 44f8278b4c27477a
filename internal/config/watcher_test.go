package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type watchedConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadWatched(path string) (watchedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return watchedConfig{}, err
	}
	var cfg watchedConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[watchedConfig]) *Watcher[watchedConfig] {
	t.Helper()
	opts = append([]WatcherOption[watchedConfig]{WithDebounce[watchedConfig](30 * time.Millisecond)}, opts...)
	w := NewWatcher(path, loadWatched, discardLogger(), opts...)
	return w
}

func run(t *testing.T, w *Watcher[watchedConfig]) {
	t.Helper()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	time.Sleep(50 * time.Millisecond)
}

func TestWatcherReloads(t *testing.T) {
	path := writeFile(t, "name = \"initial\"\nvalue = 1\n")
	received := make(chan watchedConfig, 4)

	w := startWatcher(t, path)
	w.OnReload(func(cfg watchedConfig) { received <- cfg })
	run(t, w)

	if err := os.WriteFile(path, []byte("name = \"updated\"\nvalue = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want updated/42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherSeesRenamedReplacement(t *testing.T) {
	path := writeFile(t, "value = 1\n")
	received := make(chan watchedConfig, 4)

	w := startWatcher(t, path)
	w.OnReload(func(cfg watchedConfig) { received <- cfg })
	run(t, w)

	tmp := filepath.Join(filepath.Dir(path), ".framepipe.toml.swp")
	if err := os.WriteFile(tmp, []byte("value = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Value != 7 {
			t.Errorf("Value = %d, want 7", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcherDebounces(t *testing.T) {
	path := writeFile(t, "value = 0\n")
	var loads atomic.Int32

	w := NewWatcher(path, func(p string) (watchedConfig, error) {
		loads.Add(1)
		return loadWatched(p)
	}, discardLogger(), WithDebounce[watchedConfig](150*time.Millisecond))
	run(t, w)

	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(path, []byte("value = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)

	if got := loads.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := writeFile(t, "value = 0\n")
	var first, second atomic.Int32
	done := make(chan struct{}, 4)

	w := startWatcher(t, path)
	w.OnReload(func(watchedConfig) {
		first.Add(1)
		done <- struct{}{}
	})
	remove := w.OnReload(func(watchedConfig) { second.Add(1) })
	remove()
	run(t, w)

	if err := os.WriteFile(path, []byte("value = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	if first.Load() != 1 || second.Load() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", first.Load(), second.Load())
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := writeFile(t, "value = 0\n")
	errs := make(chan error, 4)
	called := make(chan struct{}, 4)

	w := startWatcher(t, path, WithErrorHandler[watchedConfig](func(err error) { errs <- err }))
	w.OnReload(func(watchedConfig) { called <- struct{}{} })
	run(t, w)

	if err := os.WriteFile(path, []byte("value = [broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("error handler received nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error")
	}
	select {
	case <-called:
		t.Error("handler called with a broken config")
	default:
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	path := writeFile(t, "value = 0\n")
	called := make(chan struct{}, 4)

	w := startWatcher(t, path)
	w.OnReload(func(watchedConfig) { called <- struct{}{} })
	run(t, w)

	other := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(other, []byte("value = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Error("reloaded on a sibling file change")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherStop(t *testing.T) {
	path := writeFile(t, "value = 0\n")
	w := startWatcher(t, path)

	if err := w.Stop(); err != nil {
		t.Errorf("Stop() before Start error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWatchLoggingStarts(t *testing.T) {
	path := writeFile(t, "[logging]\nlevel = \"info\"\n")
	w, err := WatchLogging(path, discardLogger())
	if err != nil {
		t.Fatalf("WatchLogging() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
