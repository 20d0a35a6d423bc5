package trigger

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/seasync/seasync/config"
)

type countingRunner struct {
	count atomic.Int32
}

func (c *countingRunner) TriggerCycle() {
	c.count.Add(1)
}

func TestTriggerManualFiresImmediately(t *testing.T) {
	runner := &countingRunner{}
	root := t.TempDir()
	cfg := config.Default()
	cfg.LocalSyncPath = root

	loop := New(runner, cfg, "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	loop.TriggerManual()

	deadline := time.Now().Add(2 * time.Second)
	for runner.count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runner.count.Load() == 0 {
		t.Fatal("expected TriggerManual to invoke TriggerCycle")
	}
}

func TestWatcherDebouncesBurstsIntoOneCycle(t *testing.T) {
	runner := &countingRunner{}
	root := t.TempDir()
	cfg := config.Default()
	cfg.LocalSyncPath = root
	cfg.FileChangeDebounceSeconds = 0.2
	cfg.SyncIntervalSeconds = 3600

	loop := New(runner, cfg, "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 5; i++ {
		p := filepath.Join(root, "file.txt")
		if err := os.WriteFile(p, []byte{byte(i)}, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(600 * time.Millisecond)

	if got := runner.count.Load(); got != 1 {
		t.Errorf("expected exactly one debounced cycle, got %d", got)
	}
}

func TestHiddenPathDetection(t *testing.T) {
	cases := map[string]bool{
		"/sync/root/.git/config": true,
		"/sync/root/.hidden":     true,
		"/sync/root/visible.txt": false,
		"/sync/.root/visible":    true,
	}
	for p, want := range cases {
		if got := isHiddenPath(p); got != want {
			t.Errorf("isHiddenPath(%q) = %v, want %v", p, got, want)
		}
	}
}
