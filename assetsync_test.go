package assetsync_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzrender/assetsync"
	"github.com/quartzrender/assetsync/internal/diskstore"
)

// End to end: snapshot a tree, add a file, diff, then upload into a local
// CAS and check everything is addressable by hash.
func TestSnapshotDiffUpload(t *testing.T) {
	ctx := context.Background()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"subdir1/file1.txt": "",
		"subdir2/file2.txt": "",
	})

	manifestDir := filepath.Join(t.TempDir(), "manifest_dir")
	handle, warnings, err := assetsync.Snapshot(ctx, root, manifestDir, "test")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Contains(t, filepath.Base(handle.LocalPath), "test")

	m, _, err := assetsync.NewManifestStore().Load(handle.LocalPath)
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())
	assert.Equal(t, "subdir1/file1.txt", m.Entries[0].Path)
	assert.Equal(t, "subdir2/file2.txt", m.Entries[1].Path)

	// Add one file and diff against the live tree.
	writeTree(t, root, map[string]string{"file3.txt": "three"})

	diff, _, err := assetsync.DiffAgainstRoot(ctx, handle.LocalPath, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"file3.txt"}, diff.Added)
	assert.Empty(t, diff.Modified)
	assert.Empty(t, diff.Removed)

	// Upload the original snapshot into a local disk CAS.
	store, err := diskstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	report, uploadWarnings, err := assetsync.Upload(ctx, handle.LocalPath, store)
	require.NoError(t, err)
	assert.Empty(t, uploadWarnings)
	assert.True(t, report.Ok())
	assert.Equal(t, handle.Hash, report.ManifestHash)

	// Both files are empty, so they share one content blob.
	assert.Equal(t, 1, report.Uploaded+report.Present)

	for _, e := range m.Entries {
		exists, err := store.Exists(ctx, e.Hash)
		require.NoError(t, err)
		assert.True(t, exists, "content %s must be in the CAS", e.Hash)
	}
	exists, err := store.Exists(ctx, handle.Hash)
	require.NoError(t, err)
	assert.True(t, exists, "the manifest itself must be in the CAS")

	// Round-trip the manifest back out of the store by its own hash.
	data, err := store.Get(ctx, handle.Hash)
	require.NoError(t, err)
	fetched, err := assetsync.DecodeManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, fetched)
}

func TestUploadSingleFileRoot(t *testing.T) {
	ctx := context.Background()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"test_file": "testing123"})

	handle, _, err := assetsync.Snapshot(ctx, root, t.TempDir(), "test")
	require.NoError(t, err)

	store, err := diskstore.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	report, _, err := assetsync.Upload(ctx, handle.LocalPath, store)
	require.NoError(t, err)
	require.True(t, report.Ok())

	contentHash := assetsync.HashBytes([]byte("testing123"))
	for _, hash := range []string{contentHash, handle.Hash} {
		exists, err := store.Exists(ctx, hash)
		require.NoError(t, err)
		assert.True(t, exists, hash)
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
	}
}
