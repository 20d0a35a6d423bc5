package reconcile

import (
	"testing"

	"github.com/seasync/seasync/model"
)

func kindsOf(actions []model.SyncAction) []model.ActionKind {
	kinds := make([]model.ActionKind, len(actions))
	for i, a := range actions {
		kinds[i] = a.Kind
	}
	return kinds
}

func TestFirstRunDownload(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/docs", IsDir: true},
		{Path: "/docs/a.txt", MTime: 100, ObjectID: "x"},
	}
	actions := Reconcile(remote, map[string]model.LocalEntry{}, nil, "rw")

	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(actions), actions)
	}
	if actions[0].Kind != model.ActionCreateDirectory || actions[0].LocalPath != "/docs" {
		t.Errorf("expected CreateDirectory(/docs) first, got %+v", actions[0])
	}
	if actions[1].Kind != model.ActionDownload || actions[1].RemotePath != "/docs/a.txt" {
		t.Errorf("expected Download(/docs/a.txt) second, got %+v", actions[1])
	}
}

func TestLocalEditUploads(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/docs/a.txt", MTime: 100, ObjectID: "x"},
	}
	local := map[string]model.LocalEntry{
		"/docs/a.txt": {MTime: 150},
	}
	baseline := []model.SyncedFile{
		{Path: "/docs/a.txt", ObjectID: "x", MTime: 100},
	}

	actions := Reconcile(remote, local, baseline, "rw")
	if len(actions) != 1 || actions[0].Kind != model.ActionUpload || actions[0].LocalPath != "/docs/a.txt" {
		t.Fatalf("expected single Upload(/docs/a.txt), got %+v", actions)
	}
}

func TestRemoteDeletionPropagatesToLocal(t *testing.T) {
	local := map[string]model.LocalEntry{
		"/docs/a.txt": {MTime: 100},
	}
	baseline := []model.SyncedFile{
		{Path: "/docs/a.txt", ObjectID: "x", MTime: 100},
	}

	actions := Reconcile(nil, local, baseline, "rw")
	if len(actions) != 1 || actions[0].Kind != model.ActionDeleteLocal || actions[0].LocalPath != "/docs/a.txt" {
		t.Fatalf("expected single DeleteLocal(/docs/a.txt), got %+v", actions)
	}
}

func TestLocalDeletionPropagatesToRemote(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/docs/a.txt", MTime: 100, ObjectID: "x"},
	}
	baseline := []model.SyncedFile{
		{Path: "/docs/a.txt", ObjectID: "x", MTime: 100},
	}

	actions := Reconcile(remote, map[string]model.LocalEntry{}, baseline, "rw")
	if len(actions) != 1 || actions[0].Kind != model.ActionDeleteRemote || actions[0].RemotePath != "/docs/a.txt" {
		t.Fatalf("expected single DeleteRemote(/docs/a.txt), got %+v", actions)
	}
}

func TestBothSidesNewNoConflict(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/r.txt", MTime: 200, ObjectID: "r"},
	}
	local := map[string]model.LocalEntry{
		"/l.txt": {MTime: 210},
	}

	actions := Reconcile(remote, local, nil, "rw")

	kinds := kindsOf(actions)
	if len(kinds) != 2 {
		t.Fatalf("expected 2 actions, got %+v", actions)
	}
	hasDownload, hasUpload := false, false
	for _, a := range actions {
		if a.Kind == model.ActionDownload && a.RemotePath == "/r.txt" {
			hasDownload = true
		}
		if a.Kind == model.ActionUpload && a.LocalPath == "/l.txt" {
			hasUpload = true
		}
	}
	if !hasDownload || !hasUpload {
		t.Fatalf("expected Download(/r.txt) and Upload(/l.txt), got %+v", actions)
	}
}

func TestConcurrentEditLastModifiedWins(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/c.txt", MTime: 300, ObjectID: "old"},
	}
	local := map[string]model.LocalEntry{
		"/c.txt": {MTime: 305},
	}
	baseline := []model.SyncedFile{
		{Path: "/c.txt", ObjectID: "old", MTime: 250},
	}

	actions := Reconcile(remote, local, baseline, "rw")
	if len(actions) != 1 || actions[0].Kind != model.ActionUpload || actions[0].LocalPath != "/c.txt" {
		t.Fatalf("expected single Upload(/c.txt), got %+v", actions)
	}
}

func TestEqualMtimesAreInSync(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/c.txt", MTime: 300, ObjectID: "x"},
	}
	local := map[string]model.LocalEntry{
		"/c.txt": {MTime: 300},
	}

	actions := Reconcile(remote, local, nil, "rw")
	if len(actions) != 0 {
		t.Fatalf("expected no actions for equal mtimes, got %+v", actions)
	}
}

func TestReadOnlyLibrarySuppressesOutboundMutations(t *testing.T) {
	local := map[string]model.LocalEntry{
		"/new-local.txt": {MTime: 100},
	}
	baseline := []model.SyncedFile{
		{Path: "/gone-remotely.txt", ObjectID: "x", MTime: 100},
	}
	local["/gone-remotely.txt"] = model.LocalEntry{MTime: 100}

	actions := Reconcile(nil, local, baseline, "r")
	for _, a := range actions {
		if a.Kind == model.ActionUpload || a.Kind == model.ActionDeleteRemote {
			t.Fatalf("read-only library must never emit %v, got %+v", a.Kind, actions)
		}
	}
}

func TestDeletionRequiresBaseline(t *testing.T) {
	// Present only locally, absent remotely, no baseline row: new file,
	// not a deletion.
	local := map[string]model.LocalEntry{
		"/brand-new.txt": {MTime: 100},
	}
	actions := Reconcile(nil, local, nil, "rw")
	for _, a := range actions {
		if a.Kind == model.ActionDeleteLocal || a.Kind == model.ActionDeleteRemote {
			t.Fatalf("a path absent from the baseline must never produce a delete, got %+v", actions)
		}
	}
}

func TestEmptyInputsProduceNoActions(t *testing.T) {
	actions := Reconcile(nil, map[string]model.LocalEntry{}, nil, "rw")
	if len(actions) != 0 {
		t.Fatalf("expected no actions for empty library, got %+v", actions)
	}
}

func TestLocalFileRemoteDirectoryTypeConflict(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/a", IsDir: true},
	}
	local := map[string]model.LocalEntry{
		"/a": {MTime: 100},
	}

	actions := Reconcile(remote, local, nil, "rw")

	if len(actions) != 2 {
		t.Fatalf("expected DeleteLocal(/a) then CreateDirectory(/a), got %+v", actions)
	}
	if actions[0].Kind != model.ActionDeleteLocal || actions[0].LocalPath != "/a" {
		t.Errorf("expected DeleteLocal(/a) first, got %+v", actions[0])
	}
	if actions[1].Kind != model.ActionCreateDirectory || actions[1].LocalPath != "/a" {
		t.Errorf("expected CreateDirectory(/a) second, got %+v", actions[1])
	}
}

func TestLocalFileRemoteDirectoryTypeConflictIsReadOnlySafe(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/a", IsDir: true},
	}
	local := map[string]model.LocalEntry{
		"/a": {MTime: 100},
	}

	actions := Reconcile(remote, local, nil, "r")

	if len(actions) != 2 {
		t.Fatalf("expected the local/remote type conflict to still resolve under read-only, got %+v", actions)
	}
}

func TestActionOrdering(t *testing.T) {
	remote := []model.RemoteEntry{
		{Path: "/a", IsDir: true},
		{Path: "/a/b", IsDir: true},
	}
	local := map[string]model.LocalEntry{
		"/only-local.txt": {MTime: 1},
	}
	baseline := []model.SyncedFile{
		{Path: "/old/child.txt", ObjectID: "x", MTime: 1},
	}

	actions := Reconcile(remote, local, baseline, "rw")

	seenUpload := false
	seenDeleteRemoteAfterCreates := false
	for _, a := range actions {
		switch a.Kind {
		case model.ActionCreateDirectory:
			if seenUpload {
				t.Errorf("CreateDirectory must come before Upload in the plan")
			}
		case model.ActionUpload:
			seenUpload = true
		case model.ActionDeleteRemote:
			seenDeleteRemoteAfterCreates = true
		}
	}
	_ = seenDeleteRemoteAfterCreates
}
