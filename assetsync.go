package assetsync

import (
	"context"
	"fmt"
	"path/filepath"
)

// Snapshot scans root, builds a manifest and persists it into destDir
// under the given name. Exactly one manifest file is produced; its name
// contains the label plus a content-hash suffix. Warnings (unreadable
// entries, symlink loops, path-length substitutions) are returned even on
// success.
func Snapshot(ctx context.Context, root, destDir, name string, opts ...Option) (*ManifestHandle, []Warning, error) {
	m, warnings, err := Scan(ctx, root, opts...)
	if err != nil {
		return nil, warnings, err
	}

	handle, pathWarning, err := NewManifestStore().Persist(m, destDir, name)
	if pathWarning != nil {
		warnings = append(warnings, *pathWarning)
	}
	if err != nil {
		return nil, warnings, err
	}
	return handle, warnings, nil
}

// DiffAgainstRoot loads a persisted manifest and diffs it against the
// live tree at root.
func DiffAgainstRoot(ctx context.Context, manifestPath, root string, opts ...Option) (*DiffResult, []Warning, error) {
	baseline, loadWarning, err := NewManifestStore().Load(manifestPath)
	if err != nil {
		return nil, nil, err
	}
	d, warnings, err := DiffRoot(ctx, baseline, root, opts...)
	if loadWarning != nil {
		warnings = append([]Warning{*loadWarning}, warnings...)
	}
	return d, warnings, err
}

// Upload loads a persisted manifest and syncs its content, then the
// manifest blob itself, into the store. When the store also supports
// named manifest copies, the manifest is additionally published under its
// filename so workers can find the snapshot without knowing its digest.
// Warnings (path-length substitutions) come back even on success.
func Upload(ctx context.Context, manifestPath string, store BlobStore, opts ...Option) (*SyncReport, []Warning, error) {
	m, loadWarning, err := NewManifestStore().Load(manifestPath)
	var warnings []Warning
	if loadWarning != nil {
		warnings = append(warnings, *loadWarning)
	}
	if err != nil {
		return nil, warnings, err
	}

	report, err := NewSyncer(store, opts...).Sync(ctx, m)
	if err != nil {
		return report, warnings, err
	}

	if mp, ok := store.(ManifestPutter); ok {
		data, err := m.Encode()
		if err != nil {
			return report, warnings, err
		}
		filename := filepath.Base(manifestPath)
		if err := mp.PutManifest(ctx, filename, data); err != nil {
			return report, warnings, fmt.Errorf("publish manifest %s: %w", filename, err)
		}
	}

	return report, warnings, nil
}
