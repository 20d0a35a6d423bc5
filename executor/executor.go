// Package executor runs a planned action against the Remote Client and
// the local filesystem, per spec §4.5. Upload/download/delete bodies are
// adapted from the teacher's uploadWithResume/download/deleteRemote/
// deleteLocal methods; the bounded retry with backoff around each remote
// call is adapted from the teacher's retryTasks loop (spec §8, "bounded
// retry" supplement).
package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seasync/seasync/model"
	"github.com/seasync/seasync/remote"
)

const maxRetries = 3

// Executor runs SyncActions for one library at a time. localRoot is the
// library's local directory; libraryID identifies it on the server.
type Executor struct {
	client    *remote.Client
	libraryID string
	localRoot string
	logger    zerolog.Logger
}

// New builds an Executor bound to one library's remote id and local root.
func New(client *remote.Client, libraryID, localRoot string, logger zerolog.Logger) *Executor {
	return &Executor{client: client, libraryID: libraryID, localRoot: localRoot, logger: logger}
}

// Execute runs a single action. The error, if any, is the caller's to
// turn into a SyncError record; Execute itself never retries across
// actions, only within one action's remote calls (see withRetry).
func (e *Executor) Execute(action model.SyncAction) error {
	switch action.Kind {
	case model.ActionCreateDirectory:
		return e.createDirectory(action)
	case model.ActionDownload:
		return e.download(action)
	case model.ActionUpload:
		return e.upload(action)
	case model.ActionDeleteLocal:
		return e.deleteLocal(action)
	case model.ActionDeleteRemote:
		return e.deleteRemote(action)
	default:
		return fmt.Errorf("unsupported action kind %v", action.Kind)
	}
}

func (e *Executor) createDirectory(action model.SyncAction) error {
	target := filepath.Join(e.localRoot, filepath.FromSlash(action.LocalPath))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", action.LocalPath, err)
	}
	return nil
}

func (e *Executor) download(action model.SyncAction) error {
	var downloadURL string
	err := withRetry(func() error {
		var err error
		downloadURL, err = e.client.DownloadLink(e.libraryID, action.RemotePath)
		return err
	})
	if err != nil {
		return fmt.Errorf("getting download link for %s: %w", action.RemotePath, err)
	}

	var body io.ReadCloser
	err = withRetry(func() error {
		var err error
		body, err = e.client.Download(downloadURL)
		return err
	})
	if err != nil {
		return fmt.Errorf("downloading %s: %w", action.RemotePath, err)
	}
	defer body.Close()

	target := filepath.Join(e.localRoot, filepath.FromSlash(action.LocalPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", action.LocalPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".seasync-download-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", action.LocalPath, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", action.LocalPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file for %s: %w", action.LocalPath, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", action.LocalPath, err)
	}

	// Stamp the remote mtime onto the local file; otherwise its mtime is
	// the download wall-clock time, which the next cycle would see as
	// newer than the remote and re-upload right back.
	modTime := time.Unix(action.MTime, 0)
	if err := os.Chtimes(target, modTime, modTime); err != nil {
		return fmt.Errorf("stamping mtime on %s: %w", action.LocalPath, err)
	}
	return nil
}

func (e *Executor) upload(action model.SyncAction) error {
	localFullPath := filepath.Join(e.localRoot, filepath.FromSlash(action.LocalPath))
	f, err := os.Open(localFullPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", action.LocalPath, err)
	}
	defer f.Close()

	parent, name := splitRemotePath(action.RemotePath)

	var uploadURL string
	err = withRetry(func() error {
		var linkErr error
		uploadURL, linkErr = e.client.UploadLink(e.libraryID, parent)
		if errors.Is(linkErr, model.ErrNotFound) {
			if mkErr := e.ensureRemoteDir(parent); mkErr != nil {
				return mkErr
			}
			uploadURL, linkErr = e.client.UploadLink(e.libraryID, parent)
		}
		return linkErr
	})
	if err != nil {
		return fmt.Errorf("getting upload link for %s: %w", parent, err)
	}

	return withRetry(func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return e.client.Upload(uploadURL, parent, name, f)
	})
}

// ensureRemoteDir creates the parent chain for a remote directory that
// does not exist yet, shallowest first, matching the CreateDirectory
// ordering the reconciler already applies for remote-to-local creates.
func (e *Executor) ensureRemoteDir(dir string) error {
	if dir == "" || dir == "/" {
		return nil
	}
	segments := strings.Split(strings.Trim(dir, "/"), "/")
	cur := ""
	for _, seg := range segments {
		cur += "/" + seg
		if err := e.client.Mkdir(e.libraryID, cur); err != nil {
			return fmt.Errorf("creating remote directory %s: %w", cur, err)
		}
	}
	return nil
}

func (e *Executor) deleteLocal(action model.SyncAction) error {
	target := filepath.Join(e.localRoot, filepath.FromSlash(action.LocalPath))
	var err error
	if action.IsDir {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting local %s: %w", action.LocalPath, err)
	}
	return nil
}

func (e *Executor) deleteRemote(action model.SyncAction) error {
	return withRetry(func() error {
		if action.IsDir {
			return e.client.DeleteDir(e.libraryID, action.RemotePath)
		}
		return e.client.DeleteFile(e.libraryID, action.RemotePath)
	})
}

func splitRemotePath(p string) (parent, name string) {
	dir := path.Dir(p)
	if dir == "." {
		dir = "/"
	}
	return dir, path.Base(p)
}

// withRetry runs fn up to maxRetries+1 times with exponential backoff,
// adapted from the teacher's retryTasks loop. It does not retry
// model.ErrNotFound, since callers use that to trigger a one-shot
// mkdir-then-retry instead.
func withRetry(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		if attempt < maxRetries {
			time.Sleep(time.Second << uint(attempt))
		}
	}
	return lastErr
}
