package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the auth/API taxonomy in the spec's error design.
// Remote client calls wrap the underlying HTTP detail around these so
// callers can still errors.Is/errors.As past the wrapping.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIncorrectPassword  = errors.New("incorrect library password")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrSyncInProgress     = errors.New("sync already in progress")
)

// ServerError wraps a non-2xx status this client does not have a more
// specific sentinel for.
type ServerError struct {
	Code int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.Code)
}

// EncryptedLibraryError means a library is encrypted and no usable
// password was found in the secret store (missing, or rejected by the
// server).
type EncryptedLibraryError struct {
	LibraryName string
}

func (e *EncryptedLibraryError) Error() string {
	return fmt.Sprintf("library %q is encrypted and needs a password", e.LibraryName)
}

// SyncError is a per-action failure record surfaced on the observable
// errors list. The cycle that produced it continues past it.
type SyncError struct {
	Message     string
	Timestamp   int64
	LibraryName string
	FilePath    string
}

func (e SyncError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.LibraryName, e.Message, e.FilePath)
}
