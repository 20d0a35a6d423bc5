// Package model holds the data types shared across the sync core: the
// remote and local tree shapes the reconciler compares, the baseline rows
// the state store persists, and the actions the executor runs.
package model

// Account is the credential set for a Seafile-compatible server, held by
// the secret store between setup and logout.
type Account struct {
	ServerURL string
	Username  string
	Token     string
}

// Library is a remote repository as returned by the "list libraries" call.
// It is fetched fresh every cycle and never persisted beyond one.
type Library struct {
	ID         string
	Name       string
	Encrypted  bool
	Permission string // "r" or "rw"
	Size       int64
	MTime      int64
}

// LocalRoot returns the local directory this library is synced into,
// rooted under syncRoot.
func (l Library) LocalRoot(syncRoot string) string {
	return syncRoot + "/" + l.Name
}

// ReadOnly reports whether the library forbids outbound mutations.
func (l Library) ReadOnly() bool {
	return l.Permission == "r"
}

// RemoteEntry is one node (file or directory) under a library, as returned
// by a directory listing. Path is absolute and POSIX-style, always
// starting with "/".
type RemoteEntry struct {
	Path     string
	ObjectID string
	MTime    int64
	Size     int64
	IsDir    bool
}

// LocalEntry is one node under a local sync root. Path is relative,
// POSIX-style, always starting with "/", matching RemoteEntry.Path's form.
type LocalEntry struct {
	Path  string
	MTime int64
	IsDir bool
}

// SyncedFile is one baseline row: the engine's record of what a path
// looked like on the remote side at the end of the last successful cycle.
type SyncedFile struct {
	LibraryID string
	Path      string
	ObjectID  string
	MTime     int64
	Size      int64
	IsDir     bool
}

// SyncState is the full baseline for one library: the last-sync timestamp
// plus every SyncedFile row observed in that cycle.
type SyncState struct {
	LibraryID    string
	LastSyncTime int64
	Files        []SyncedFile
}

// ActionKind tags the variant of a SyncAction.
type ActionKind int

const (
	ActionDownload ActionKind = iota
	ActionUpload
	ActionDeleteLocal
	ActionDeleteRemote
	ActionCreateDirectory
	// ActionConflict is reserved for a future conflict-resolution strategy
	// beyond last-modified-wins. Never emitted by the current reconciler.
	ActionConflict
)

func (k ActionKind) String() string {
	switch k {
	case ActionDownload:
		return "download"
	case ActionUpload:
		return "upload"
	case ActionDeleteLocal:
		return "delete_local"
	case ActionDeleteRemote:
		return "delete_remote"
	case ActionCreateDirectory:
		return "create_directory"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// SyncAction is one planned mutation. RemotePath and LocalPath are set
// depending on Kind; unused fields are left zero.
type SyncAction struct {
	Kind       ActionKind
	RemotePath string
	LocalPath  string
	// IsDir carries the baseline's directory flag through to DeleteRemote,
	// which needs it to pick the file vs. directory delete endpoint.
	IsDir bool
	// MTime carries the remote entry's mtime through to Download, so the
	// executor can stamp the local file with it instead of the download
	// wall-clock time — without this, the next cycle would see a newer
	// local mtime and re-upload a file it just fetched.
	MTime int64
}
