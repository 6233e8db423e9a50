package assetsync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffUnchanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "subdir1/file1.txt", "one")
	writeFile(t, root, "subdir2/file2.txt", "two")

	baseline, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	d, _, err := DiffRoot(context.Background(), baseline, root)
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Modified)
	assert.Empty(t, d.Removed)
}

func TestDiffAddedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "subdir1/file1.txt", "")
	writeFile(t, root, "subdir2/file2.txt", "")

	baseline, _, err := Scan(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, 2, baseline.Len())

	writeFile(t, root, "file3.txt", "new content")

	d, _, err := DiffRoot(context.Background(), baseline, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"file3.txt"}, d.Added)
	assert.Empty(t, d.Modified)
	assert.Empty(t, d.Removed)

	entry, ok := d.Entries["file3.txt"]
	require.True(t, ok, "added paths carry their entry for re-upload")
	assert.Equal(t, HashBytes([]byte("new content")), entry.Hash)
}

func TestDiffModifiedAndRemoved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "same")
	writeFile(t, root, "change.txt", "before")
	writeFile(t, root, "drop.txt", "bye")

	baseline, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	writeFile(t, root, "change.txt", "after!")
	require.NoError(t, os.Remove(filepath.Join(root, "drop.txt")))

	d, _, err := DiffRoot(context.Background(), baseline, root)
	require.NoError(t, err)
	assert.Empty(t, d.Added)
	assert.Equal(t, []string{"change.txt"}, d.Modified)
	assert.Equal(t, []string{"drop.txt"}, d.Removed)
}

func TestDiffIgnoresMTime(t *testing.T) {
	baseline := NewManifest("/r", []AssetEntry{{Path: "a.txt", Hash: "aa", Size: 1, MTime: 100}})
	current := NewManifest("/r", []AssetEntry{{Path: "a.txt", Hash: "aa", Size: 1, MTime: 999}})

	d := Diff(baseline, current)
	assert.True(t, d.Empty(), "identical content must never report modified, whatever the timestamps")
}

func TestDiffCaseSensitivePaths(t *testing.T) {
	baseline := NewManifest("/r", []AssetEntry{{Path: "File.txt", Hash: "aa", Size: 1}})
	current := NewManifest("/r", []AssetEntry{{Path: "file.txt", Hash: "aa", Size: 1}})

	d := Diff(baseline, current)
	assert.Equal(t, []string{"file.txt"}, d.Added)
	assert.Equal(t, []string{"File.txt"}, d.Removed)
}

func TestDiffResultJSONShape(t *testing.T) {
	d := Diff(NewManifest("/r", nil), NewManifest("/r", nil))

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"added":[],"modified":[],"removed":[]}`, string(data))
}
