package assetsync

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaVersion is the manifest document format this build reads and
// writes. Documents with any other version are rejected outright.
const SchemaVersion = 1

// AssetEntry describes one regular file in a manifest. Path is
// root-relative with forward slashes, case preserved. MTime is advisory
// only (unix microseconds) and never participates in equality.
type AssetEntry struct {
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"`
}

// Manifest is an immutable snapshot of a file tree. Entries are unique by
// Path and held in lexicographic order, so two structurally identical
// trees always serialize to the same bytes.
type Manifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	HashAlg       string       `json:"hashAlg"`
	Root          string       `json:"root"`
	Entries       []AssetEntry `json:"entries"`
	TotalSize     int64        `json:"totalSize"`
}

// NewManifest builds a manifest from a set of entries. It sorts and
// copies the slice; the input is not retained.
func NewManifest(root string, entries []AssetEntry) *Manifest {
	sorted := make([]AssetEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var total int64
	for _, e := range sorted {
		total += e.Size
	}

	return &Manifest{
		SchemaVersion: SchemaVersion,
		HashAlg:       HashAlgorithm,
		Root:          root,
		Entries:       sorted,
		TotalSize:     total,
	}
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.Entries) }

// Lookup returns the entry for a relative path. Comparison is exact
// string, case-sensitive.
func (m *Manifest) Lookup(path string) (AssetEntry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Path >= path })
	if i < len(m.Entries) && m.Entries[i].Path == path {
		return m.Entries[i], true
	}
	return AssetEntry{}, false
}

// Encode serializes the manifest deterministically: fixed field order,
// entries sorted by path, trailing newline. Identical trees produce
// byte-identical documents.
func (m *Manifest) Encode() ([]byte, error) {
	if !sort.SliceIsSorted(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path }) {
		return nil, fmt.Errorf("manifest entries not sorted")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Digest returns the content hash of the serialized manifest, which is
// also its key in the CAS.
func (m *Manifest) Digest() (string, error) {
	data, err := m.Encode()
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// DecodeManifest parses a serialized manifest. A document that fails to
// parse is ErrCorruptManifest; a parseable document with an unsupported
// schema version is ErrSchemaMismatch. Both are fatal to the caller.
func DecodeManifest(data []byte) (*Manifest, error) {
	var probe struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	if probe.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, probe.SchemaVersion, SchemaVersion)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	if m.HashAlg != HashAlgorithm {
		// Hashes under another algorithm must never be used as CAS keys.
		return nil, fmt.Errorf("%w: hash algorithm %q, want %q", ErrSchemaMismatch, m.HashAlg, HashAlgorithm)
	}

	seen := make(map[string]struct{}, len(m.Entries))
	for _, e := range m.Entries {
		if _, dup := seen[e.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q", ErrCorruptManifest, e.Path)
		}
		seen[e.Path] = struct{}{}
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path })

	return &m, nil
}
