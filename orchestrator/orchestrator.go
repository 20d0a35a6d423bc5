// Package orchestrator iterates libraries, invoking the scanner, remote
// client, reconciler, and executor for each, then writes the new
// baseline and publishes status. It is the single-flight cycle runner
// (C6), adapted from the teacher's SyncEngine but generalized from one
// WebDAV mount to many Seafile-style libraries reconciled independently.
package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seasync/seasync/config"
	"github.com/seasync/seasync/executor"
	"github.com/seasync/seasync/model"
	"github.com/seasync/seasync/observable"
	"github.com/seasync/seasync/reconcile"
	"github.com/seasync/seasync/remote"
	"github.com/seasync/seasync/scanner"
	"github.com/seasync/seasync/secret"
	"github.com/seasync/seasync/store"
)

// Orchestrator runs sync cycles. All of its collaborators are handed in
// at construction time as capabilities, per the spec's shared-singleton
// pattern; it owns none of their lifetimes.
type Orchestrator struct {
	client    *remote.Client
	store     *store.Store
	secrets   secret.Store
	publisher *observable.Publisher
	cfg       config.Config
	logger    zerolog.Logger

	mu      sync.Mutex
	syncing bool
}

// New builds an Orchestrator. The caller retains ownership of client,
// store, secrets, and publisher and is responsible for closing/shutting
// them down.
func New(client *remote.Client, st *store.Store, secrets secret.Store, publisher *observable.Publisher, cfg config.Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		client:    client,
		store:     st,
		secrets:   secrets,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// TriggerCycle attempts to start a cycle. If one is already in flight the
// request is silently dropped — spec §7, "the single-flight rejection is
// silent (no user-visible error)".
func (o *Orchestrator) TriggerCycle() {
	o.mu.Lock()
	if o.syncing {
		o.mu.Unlock()
		o.logger.Debug().Msg("cycle requested while one is already in flight, dropping")
		return
	}
	o.syncing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.mu.Unlock()
	}()

	if err := o.runCycle(); err != nil {
		o.logger.Error().Err(err).Msg("sync cycle failed")
		snapshot := o.publisher.Snapshot()
		snapshot.State = observable.StateError
		o.publisher.Publish(snapshot)
	}
}

// IsSyncing reports whether a cycle is currently in flight.
func (o *Orchestrator) IsSyncing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.syncing
}

func (o *Orchestrator) runCycle() error {
	cycleID := newCycleID()
	logger := o.logger.With().Str("cycle", cycleID).Logger()
	logger.Info().Msg("cycle started")

	o.publisher.Publish(observable.Status{State: observable.StateSyncing, IsConfigured: true})

	libraries, err := o.client.ListLibraries()
	if err != nil {
		return fmt.Errorf("listing libraries: %w", err)
	}

	var errs []model.SyncError
	snapshot := o.publisher.Snapshot()
	snapshot.State = observable.StateSyncing
	snapshot.Libraries = libraries
	o.publisher.Publish(snapshot)

	for i, lib := range libraries {
		progress := float64(i) / float64(len(libraries))
		o.publish(observable.StateSyncing, progress, fmt.Sprintf("syncing %s", lib.Name), libraries, errs)

		actionErrs, libErr := o.syncLibrary(lib)
		errs = append(errs, actionErrs...)
		if libErr != nil {
			var encErr *model.EncryptedLibraryError
			if errors.As(libErr, &encErr) {
				errs = append(errs, model.SyncError{
					Message:     encErr.Error(),
					Timestamp:   time.Now().Unix(),
					LibraryName: lib.Name,
				})
				continue
			}
			// Any other whole-library failure is recorded and the
			// orchestrator moves on to the next library; it does not
			// abort the whole cycle (only auth/list-libraries failures
			// do that, per spec §7).
			errs = append(errs, model.SyncError{
				Message:     libErr.Error(),
				Timestamp:   time.Now().Unix(),
				LibraryName: lib.Name,
			})
		}
	}

	o.publish(observable.StateIdle, 1, "", libraries, errs)
	logger.Info().Int("libraries", len(libraries)).Int("errors", len(errs)).Msg("cycle finished")
	return nil
}

func (o *Orchestrator) publish(state observable.State, progress float64, op string, libraries []model.Library, errs []model.SyncError) {
	o.publisher.Publish(observable.Status{
		State:            state,
		IsConfigured:     true,
		LastSyncTime:     time.Now().Unix(),
		Progress:         progress,
		CurrentOperation: op,
		Libraries:        libraries,
		Errors:           errs,
	})
}

func (o *Orchestrator) syncLibrary(lib model.Library) ([]model.SyncError, error) {
	logger := o.logger.With().Str("library", lib.Name).Logger()

	if lib.Encrypted {
		password, ok, err := o.secrets.LoadLibraryPassword(lib.ID)
		if err != nil {
			return nil, fmt.Errorf("loading library password: %w", err)
		}
		if !ok {
			return nil, &model.EncryptedLibraryError{LibraryName: lib.Name}
		}
		if err := o.client.SetLibraryPassword(lib.ID, password); err != nil {
			if errors.Is(err, model.ErrIncorrectPassword) {
				return nil, &model.EncryptedLibraryError{LibraryName: lib.Name}
			}
			return nil, fmt.Errorf("unlocking library: %w", err)
		}
	}

	localRoot := lib.LocalRoot(o.cfg.LocalSyncPath)
	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating local root %s: %w", localRoot, err)
	}

	remoteEntries, err := o.client.ListRecursive(lib.ID, "/")
	if err != nil {
		return nil, fmt.Errorf("listing remote tree: %w", err)
	}

	localEntries, err := scanner.Scan(localRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning local tree: %w", err)
	}

	state, _, err := o.store.GetState(lib.ID)
	if err != nil {
		// Read failures degrade to "absent baseline", per spec §4.1 —
		// safe under last-modified-wins, if conservative.
		logger.Error().Err(err).Msg("reading baseline, treating as first sync")
		state = model.SyncState{LibraryID: lib.ID}
	}

	localModelEntries := make(map[string]model.LocalEntry, len(localEntries))
	for path, entry := range localEntries {
		localModelEntries[path] = model.LocalEntry{
			Path:  path,
			MTime: entry.MTime,
			IsDir: entry.IsDir,
		}
	}

	actions := reconcile.Reconcile(remoteEntries, localModelEntries, state.Files, lib.Permission)

	// Paths whose remote entry failed to materialize locally (a failed
	// Download or CreateDirectory) must not enter the new baseline: a
	// baseline row with no corresponding local file would make the next
	// cycle read it as "deleted locally" and emit a DeleteRemote, turning
	// one failed transfer into a remote data loss. Excluding the row
	// instead leaves it absent from the baseline, so the path is simply
	// retried as a fresh Download next cycle (spec §9).
	notMaterialized := make(map[string]bool)

	var actionErrs []model.SyncError
	exec := executor.New(o.client, lib.ID, localRoot, logger)
	for _, action := range actions {
		if err := exec.Execute(action); err != nil {
			logger.Error().Err(err).
				Str("action", action.Kind.String()).
				Str("path", pathForLog(action)).
				Msg("action failed")
			actionErr := model.SyncError{
				Message:     err.Error(),
				Timestamp:   time.Now().Unix(),
				LibraryName: lib.Name,
				FilePath:    pathForLog(action),
			}
			actionErrs = append(actionErrs, actionErr)
			o.publisher.AppendError(actionErr)
			if action.Kind == model.ActionDownload || action.Kind == model.ActionCreateDirectory {
				notMaterialized[action.RemotePath] = true
				notMaterialized[action.LocalPath] = true
			}
		}
	}

	newState := model.SyncState{
		LibraryID:    lib.ID,
		LastSyncTime: time.Now().Unix(),
		Files:        syncedFilesFromRemote(lib.ID, remoteEntries, notMaterialized),
	}
	if err := o.store.SaveState(newState); err != nil {
		return actionErrs, fmt.Errorf("saving baseline: %w", err)
	}

	return actionErrs, nil
}

func syncedFilesFromRemote(libraryID string, entries []model.RemoteEntry, exclude map[string]bool) []model.SyncedFile {
	files := make([]model.SyncedFile, 0, len(entries))
	for _, e := range entries {
		if exclude[e.Path] {
			continue
		}
		files = append(files, model.SyncedFile{
			LibraryID: libraryID,
			Path:      e.Path,
			ObjectID:  e.ObjectID,
			MTime:     e.MTime,
			Size:      e.Size,
			IsDir:     e.IsDir,
		})
	}
	return files
}

func pathForLog(a model.SyncAction) string {
	if a.LocalPath != "" {
		return a.LocalPath
	}
	return a.RemotePath
}

// newCycleID returns the id runCycle attaches to its logger, so log lines
// from one cycle can be correlated.
func newCycleID() string {
	return uuid.NewString()
}
