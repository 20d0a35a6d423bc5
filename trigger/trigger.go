// Package trigger starts a sync cycle on a periodic timer, on a
// debounced filesystem watcher event, or on a manual request, all
// converging on the orchestrator's single-flight guard (spec §4.7).
// Adapted from the teacher's fsnotify wiring in engine.Start and its
// monitorNetwork/checkNetwork gating, generalized from one watched
// directory to the whole sync root watched recursively.
package trigger

import (
	"context"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/seasync/seasync/config"
)

// cycleRunner is the single method the trigger loop depends on, so tests
// can exercise it without a real orchestrator.
type cycleRunner interface {
	TriggerCycle()
}

// Loop drives cycle requests from the three sources in spec §4.7.
type Loop struct {
	orch   cycleRunner
	cfg    config.Config
	logger zerolog.Logger

	networkOK atomic.Bool
	pingURL   string
	pinger    *http.Client

	mu       sync.Mutex
	debounce *time.Timer
	watcher  *fsnotify.Watcher
}

// New builds a Loop. pingURL is used only for the network-availability
// pre-check (empty disables it, treating the network as always up).
func New(orch cycleRunner, cfg config.Config, pingURL string, logger zerolog.Logger) *Loop {
	l := &Loop{
		orch:    orch,
		cfg:     cfg,
		logger:  logger,
		pingURL: pingURL,
		pinger:  &http.Client{Timeout: 3 * time.Second},
	}
	l.networkOK.Store(true)
	return l
}

// Start subscribes to the sync root recursively, starts the periodic
// timer and (if pingURL is set) the network monitor, and returns once the
// watcher is installed. All three sources run until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Error().Err(err).Msg("starting filesystem watcher failed")
		return err
	}
	l.watcher = watcher

	if err := addRecursive(watcher, l.cfg.LocalSyncPath); err != nil {
		l.logger.Error().Err(err).Msg("adding watch on sync root failed")
		watcher.Close()
		return err
	}

	go l.watchLoop(ctx)
	go l.periodicLoop(ctx)
	if l.pingURL != "" {
		go l.networkLoop(ctx)
	}

	go func() {
		<-ctx.Done()
		watcher.Close()
	}()

	return nil
}

// TriggerManual posts an immediate cycle request (spec §4.7, "manual
// trigger").
func (l *Loop) TriggerManual() {
	go l.orch.TriggerCycle()
}

func (l *Loop) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if isHiddenPath(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// New directories need their own watch to stay recursive.
				_ = addRecursive(l.watcher, event.Name)
			}
			l.scheduleDebounced()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("filesystem watcher error")
		}
	}
}

// scheduleDebounced coalesces a burst of events into a single cycle
// request fired after the configured quiet-time window.
func (l *Loop) scheduleDebounced() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.debounce != nil {
		l.debounce.Stop()
	}
	l.debounce = time.AfterFunc(l.cfg.DebounceWindow(), func() {
		if l.networkOK.Load() {
			l.orch.TriggerCycle()
		} else {
			l.logger.Debug().Msg("network unavailable, dropping watcher-triggered cycle")
		}
	})
}

func (l *Loop) periodicLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SyncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.networkOK.Load() {
				l.logger.Debug().Msg("network unavailable, skipping periodic cycle")
				continue
			}
			l.orch.TriggerCycle()
		}
	}
}

// networkLoop pings the server on a short interval, independent of the
// sync cadence, so the periodic and debounce paths can cheaply skip a
// cycle that is doomed to fail at the first remote call.
func (l *Loop) networkLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wasOK := l.networkOK.Load()
			nowOK := l.checkNetwork()
			l.networkOK.Store(nowOK)
			if !wasOK && nowOK {
				l.logger.Info().Msg("network reachable again")
			} else if wasOK && !nowOK {
				l.logger.Info().Msg("network unreachable")
			}
		}
	}
}

func (l *Loop) checkNetwork() bool {
	resp, err := l.pinger.Get(l.pingURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// addRecursive adds a watch on root and every directory beneath it,
// skipping hidden ones, so the whole sync root is subscribed the way
// spec §4.7 requires ("subscribes to the entire local sync root
// recursively").
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if isHiddenPath(p) {
			return nil
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

func isHiddenPath(p string) bool {
	return strings.Contains(filepath.ToSlash(p), "/.")
}
