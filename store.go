package assetsync

import (
	"context"
	"io"
)

// BlobStore is the capability the sync engine needs from a remote
// content-addressed store. Implementations must tolerate concurrent
// Exists/Put calls without external locking, and each Put must be
// independently atomic so a cancelled or partially failed sync leaves the
// store valid and resumable. The engine never interprets blob content.
type BlobStore interface {
	// Exists reports whether the store already holds content with the
	// given hash.
	Exists(ctx context.Context, hash string) (bool, error)

	// Put stores size bytes from r under the given content hash.
	// Storing the same hash twice must be a no-op or an overwrite with
	// identical bytes, never an error.
	Put(ctx context.Context, hash string, r io.Reader, size int64) error

	// Get retrieves the content stored under hash.
	Get(ctx context.Context, hash string) ([]byte, error)
}

// ManifestPutter is an optional BlobStore capability for publishing a
// named manifest copy alongside the content-addressed one, so workers can
// find a snapshot by its filename instead of its digest.
type ManifestPutter interface {
	PutManifest(ctx context.Context, filename string, data []byte) error
}

// CasObjectRef is one unique blob a sync run must ensure exists remotely:
// the engine's unit of deduplication. Refs are derived per run from the
// entries a diff (or a whole manifest) implicates; entries with identical
// content collapse into a single ref.
type CasObjectRef struct {
	Hash string
	Size int64

	// srcPath is where the content can be read on the submitting
	// machine, for refs that need uploading.
	srcPath string
}
