// Package reconcile implements the three-way reconciliation algorithm
// (remote tree, local tree, baseline) -> ordered actions, spec §4.4. This
// is a pure function: no I/O, no clock reads, so it is trivial to test in
// isolation the way alexjbarnes-vault-sync's Reconcile decision function
// is tested independently of the code that executes its decisions.
package reconcile

import (
	"sort"
	"strings"

	"github.com/seasync/seasync/model"
)

// Reconcile computes the ordered action plan for one library cycle.
// remote must be in the server's listing order (ListRecursive preserves
// it); local is the scanner's output map; baseline is the prior cycle's
// SyncedFile rows. permission is the library's "r"/"rw" flag: read-only
// libraries never emit Upload or DeleteRemote actions (spec §4.4).
func Reconcile(remote []model.RemoteEntry, local map[string]model.LocalEntry, baseline []model.SyncedFile, permission string) []model.SyncAction {
	readOnly := permission == "r"

	remoteByPath := make(map[string]model.RemoteEntry, len(remote))
	for _, r := range remote {
		remoteByPath[r.Path] = r
	}
	baselineByPath := make(map[string]model.SyncedFile, len(baseline))
	for _, b := range baseline {
		baselineByPath[b.Path] = b
	}

	var creates, downloads, uploads, deleteRemotes, deleteLocals []model.SyncAction

	// Step 1: descend remote, emit downloads/mkdirs.
	for _, r := range remote {
		lentry, localExists := local[r.Path]

		// Present remotely and in the baseline but gone locally: the user
		// deleted it, and step 3 emits the DeleteRemote. Re-fetching it here
		// would undo that deletion. Read-only libraries never emit the
		// DeleteRemote, so there the remote copy is restored instead.
		if _, inBaseline := baselineByPath[r.Path]; !localExists && inBaseline && !readOnly {
			continue
		}

		if r.IsDir {
			if !localExists || !lentry.IsDir {
				// !lentry.IsDir: a local file sits where the remote now has
				// a directory. The CreateDirectory still needs to run (the
				// matching DeleteLocal for the stale file is emitted in
				// step 2, and ordered ahead of this by the type-flip pass
				// below).
				creates = append(creates, model.SyncAction{
					Kind:      model.ActionCreateDirectory,
					LocalPath: r.Path,
				})
			}
			continue
		}

		if !localExists || lentry.MTime < r.MTime {
			downloads = append(downloads, model.SyncAction{
				Kind:       model.ActionDownload,
				RemotePath: r.Path,
				LocalPath:  r.Path,
				MTime:      r.MTime,
			})
		}
		// lentry.MTime > r.MTime or equal: no-op here, the upload step
		// below handles the ">" case and equal mtimes are in-sync.
	}

	// Step 2: walk local, emit uploads. The type-conflict delete runs
	// regardless of permission — it's an inbound cleanup, not an outbound
	// mutation — so it's checked before the read-only gate.
	for path, l := range local {
		if l.IsDir {
			continue
		}
		r, existsRemote := remoteByPath[path]
		if existsRemote && r.IsDir {
			// Type conflict: remote has a directory where local has a
			// file. The remote directory wins; the stale local file is
			// deleted (independent of the baseline — it must go
			// regardless of whether this path was ever synced before)
			// and step 1 above already planned the CreateDirectory.
			deleteLocals = append(deleteLocals, model.SyncAction{
				Kind:      model.ActionDeleteLocal,
				LocalPath: path,
			})
			continue
		}
		if readOnly {
			continue
		}
		if existsRemote {
			if l.MTime > r.MTime {
				uploads = append(uploads, model.SyncAction{
					Kind:       model.ActionUpload,
					LocalPath:  path,
					RemotePath: path,
				})
			}
			continue
		}
		if _, wasSynced := baselineByPath[path]; wasSynced {
			// The baseline says this path used to exist on the remote.
			// It's gone now, so this is a remote deletion to propagate,
			// not a new local file; step 3 below emits the DeleteLocal.
			continue
		}
		uploads = append(uploads, model.SyncAction{
			Kind:       model.ActionUpload,
			LocalPath:  path,
			RemotePath: path,
		})
	}

	// Step 3: deletion detection via baseline.
	for _, b := range baseline {
		_, onRemote := remoteByPath[b.Path]
		_, onLocal := local[b.Path]

		switch {
		case !onRemote && onLocal:
			deleteLocals = append(deleteLocals, model.SyncAction{
				Kind:      model.ActionDeleteLocal,
				LocalPath: b.Path,
				IsDir:     b.IsDir,
			})
		case onRemote && !onLocal && !readOnly:
			deleteRemotes = append(deleteRemotes, model.SyncAction{
				Kind:       model.ActionDeleteRemote,
				RemotePath: b.Path,
				IsDir:      b.IsDir,
			})
		}
		// Absent from both: already gone on both sides, no action.
	}

	sortByDepth(creates, false)   // top-down: shallow first
	sortByDepth(uploads, true)    // bottom-up: deep first
	sortByDepth(deleteRemotes, true)
	sortByDepth(deleteLocals, true)

	actions := make([]model.SyncAction, 0, len(creates)+len(downloads)+len(uploads)+len(deleteRemotes)+len(deleteLocals))

	// Type-flip edge case: if a path is about to be both deleted and
	// (re)created/downloaded/uploaded as the other type, the delete must
	// run first or the create would write into/over a path of the wrong
	// kind. Pull those specific deletes to the very front; everything
	// else keeps the general ordering below.
	createdOrWritten := make(map[string]bool, len(creates)+len(downloads)+len(uploads))
	for _, a := range creates {
		createdOrWritten[a.LocalPath] = true
	}
	for _, a := range downloads {
		createdOrWritten[a.LocalPath] = true
	}
	for _, a := range uploads {
		createdOrWritten[a.RemotePath] = true
	}

	var leadingDeletes, restDeleteLocals []model.SyncAction
	for _, a := range deleteLocals {
		if createdOrWritten[a.LocalPath] {
			leadingDeletes = append(leadingDeletes, a)
		} else {
			restDeleteLocals = append(restDeleteLocals, a)
		}
	}
	var restDeleteRemotes []model.SyncAction
	for _, a := range deleteRemotes {
		if createdOrWritten[a.RemotePath] {
			leadingDeletes = append(leadingDeletes, a)
		} else {
			restDeleteRemotes = append(restDeleteRemotes, a)
		}
	}

	actions = append(actions, leadingDeletes...)
	actions = append(actions, creates...)
	actions = append(actions, downloads...)
	actions = append(actions, uploads...)
	actions = append(actions, restDeleteRemotes...)
	actions = append(actions, restDeleteLocals...)

	return actions
}

func depth(path string) int {
	return strings.Count(strings.Trim(path, "/"), "/")
}

func pathOf(a model.SyncAction) string {
	if a.LocalPath != "" {
		return a.LocalPath
	}
	return a.RemotePath
}

// sortByDepth orders actions by path depth, either shallow-first
// (top-down, deep=false) or deep-first (bottom-up, deep=true). Ties keep
// their relative input order (sort.SliceStable).
func sortByDepth(actions []model.SyncAction, deep bool) {
	sort.SliceStable(actions, func(i, j int) bool {
		di, dj := depth(pathOf(actions[i])), depth(pathOf(actions[j]))
		if deep {
			return di > dj
		}
		return di < dj
	})
}
