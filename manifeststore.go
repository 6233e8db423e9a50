package assetsync

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/quartzrender/assetsync/internal/longpath"
)

// ManifestHandle is a persisted manifest: where it lives locally, its
// user-supplied label and the digest of its serialized form, which doubles
// as its CAS key. Never mutated after creation.
type ManifestHandle struct {
	Name      string    `json:"name"`
	LocalPath string    `json:"localPath"`
	Hash      string    `json:"manifestHash"`
	CreatedAt time.Time `json:"createdTime"`
}

// ManifestStore names, persists and locates manifest documents. Every
// local write path goes through the long-path guard, so destinations past
// the host path-length ceiling degrade to a warning instead of an error.
type ManifestStore struct {
	guard *longpath.Guard
}

// NewManifestStore returns a store with the host's default path guard.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{guard: longpath.Default()}
}

// NewManifestStoreWithGuard injects a specific guard. Tests use this to
// exercise the ceiling without a 260-character fixture tree.
func NewManifestStoreWithGuard(guard *longpath.Guard) *ManifestStore {
	return &ManifestStore{guard: guard}
}

// Persist serializes m deterministically into destDir. The filename is
// the user label plus the first 12 hex digits of the manifest hash, so a
// snapshot produces exactly one file and identical trees reuse the same
// name. Returns the handle and, when the guard had to rewrite the path, a
// non-fatal warning.
func (ms *ManifestStore) Persist(m *Manifest, destDir, name string) (*ManifestHandle, *Warning, error) {
	data, err := m.Encode()
	if err != nil {
		return nil, nil, err
	}
	hash := HashBytes(data)

	filename := fmt.Sprintf("%s-%s.manifest.json", name, hash[:12])
	dest := filepath.Join(destDir, filename)

	writePath, sub := ms.guard.Resolve(dest)
	var warning *Warning
	if sub != nil {
		warning = &Warning{
			Kind:    WarnLongPath,
			Path:    dest,
			Message: fmt.Sprintf("destination exceeds the host path length limit (%d chars), writing via %s", ms.guard.Limit, sub.Resolved),
		}
	}

	if err := os.MkdirAll(ms.guard.MustResolve(destDir), 0755); err != nil {
		return nil, warning, fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(writePath, data, 0644); err != nil {
		return nil, warning, fmt.Errorf("write manifest: %w", err)
	}

	handle := &ManifestHandle{
		Name:      name,
		LocalPath: dest,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}
	return handle, warning, nil
}

// Load reads and validates a manifest document. Schema and structural
// failures are fatal; a path past the host ceiling is read through the
// guard and reported as a warning, same as on the write side.
func (ms *ManifestStore) Load(manifestPath string) (*Manifest, *Warning, error) {
	readPath, sub := ms.guard.Resolve(manifestPath)
	var warning *Warning
	if sub != nil {
		warning = &Warning{
			Kind:    WarnLongPath,
			Path:    manifestPath,
			Message: fmt.Sprintf("manifest path exceeds the host path length limit (%d chars), reading via %s", ms.guard.Limit, sub.Resolved),
		}
	}

	data, err := os.ReadFile(readPath)
	if err != nil {
		return nil, warning, fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return nil, warning, fmt.Errorf("manifest %s: %w", manifestPath, err)
	}
	return m, warning, nil
}

// Remote layout under a queue's root prefix. Blobs live under Data/ keyed
// by content hash; named manifest copies live under Manifests/.
const (
	remoteManifestDir = "Manifests"
	remoteBlobDir     = "Data"
)

// ManifestKey returns the remote key for a named manifest copy.
func ManifestKey(prefix, filename string) string {
	return path.Join(prefix, remoteManifestDir, filename)
}

// BlobKey returns the remote key for a content blob.
func BlobKey(prefix, hash string) string {
	return path.Join(prefix, remoteBlobDir, hash)
}

// QueueResolver maps farm and queue identifiers to the remote root prefix
// their manifests and blobs live under. The lookup itself (directory
// service, config file, API call) is injected by the caller.
type QueueResolver func(ctx context.Context, farmID, queueID string) (string, error)

// LocateRemote resolves a queue's root prefix through the injected
// resolver.
func LocateRemote(ctx context.Context, farmID, queueID string, resolve QueueResolver) (string, error) {
	if resolve == nil {
		return "", fmt.Errorf("no queue resolver configured")
	}
	prefix, err := resolve(ctx, farmID, queueID)
	if err != nil {
		return "", fmt.Errorf("resolve queue %s/%s: %w", farmID, queueID, err)
	}
	if prefix == "" {
		return "", fmt.Errorf("queue %s/%s has no root prefix", farmID, queueID)
	}
	return prefix, nil
}
