package assetsync

import (
	"context"
	"sort"
)

// DiffResult is the delta between a baseline manifest and a current one.
// The three path sets are disjoint and sorted. Entries carries the
// current-side AssetEntry for every added or modified path, which is what
// a sync needs to re-upload.
type DiffResult struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`

	Entries map[string]AssetEntry `json:"-"`
}

// Empty reports whether the two trees are identical.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Diff compares two manifests as mappings from relative path to entry.
// A path counts as modified when size or content hash differ; mtime is
// never consulted, so touched-but-identical files stay quiet. Path
// comparison is exact-string and case-sensitive; trees scanned off
// case-insensitive filesystems are a documented limitation, not silently
// normalized. Pure function: no I/O, no shared state.
func Diff(baseline, current *Manifest) *DiffResult {
	base := make(map[string]AssetEntry, len(baseline.Entries))
	for _, e := range baseline.Entries {
		base[e.Path] = e
	}

	// Slices start non-nil so the structured form always renders the
	// three sets, empty or not.
	d := &DiffResult{
		Added:    []string{},
		Modified: []string{},
		Removed:  []string{},
		Entries:  make(map[string]AssetEntry),
	}
	for _, e := range current.Entries {
		old, ok := base[e.Path]
		switch {
		case !ok:
			d.Added = append(d.Added, e.Path)
			d.Entries[e.Path] = e
		case old.Size != e.Size || old.Hash != e.Hash:
			d.Modified = append(d.Modified, e.Path)
			d.Entries[e.Path] = e
		}
		delete(base, e.Path)
	}
	for path := range base {
		d.Removed = append(d.Removed, path)
	}

	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)
	return d
}

// DiffRoot diffs a baseline manifest against the live tree at root by
// scanning it fresh and delegating to Diff. Scan warnings pass through.
func DiffRoot(ctx context.Context, baseline *Manifest, root string, opts ...Option) (*DiffResult, []Warning, error) {
	current, warnings, err := Scan(ctx, root, opts...)
	if err != nil {
		return nil, warnings, err
	}
	return Diff(baseline, current), warnings, nil
}
