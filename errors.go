package assetsync

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch is returned when a manifest document declares a
	// schema version this build does not understand. Fatal: no partial
	// read is attempted.
	ErrSchemaMismatch = errors.New("assetsync: unsupported manifest schema version")

	// ErrCorruptManifest is returned when a manifest document fails to
	// parse at all.
	ErrCorruptManifest = errors.New("assetsync: corrupt manifest document")
)

// ReadError reports a file that could not be read during a scan. The
// scanner records these as warnings and excludes the file from the
// manifest rather than aborting.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// TransportError reports a blob whose upload or existence check exhausted
// all retry attempts. It is recorded per object in the SyncReport and does
// not abort sibling uploads.
type TransportError struct {
	Hash string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure for %s: %v", shortHash(e.Hash), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Warning kinds surfaced by scans, snapshots and uploads.
const (
	WarnUnreadable  = "unreadable"
	WarnSymlinkLoop = "symlink-loop"
	WarnLongPath    = "long-path"
)

// Warning is a non-fatal condition the caller must be able to see even on
// overall success.
type Warning struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Path == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Path, w.Message)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
