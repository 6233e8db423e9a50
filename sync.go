package assetsync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// ObjectStatus is the per-blob outcome of a sync run.
type ObjectStatus string

const (
	StatusUploaded ObjectStatus = "uploaded"
	StatusPresent  ObjectStatus = "already-present"
	StatusFailed   ObjectStatus = "failed"
)

// ObjectResult records what happened to one unique blob.
type ObjectResult struct {
	Hash   string       `json:"hash"`
	Size   int64        `json:"size"`
	Status ObjectStatus `json:"status"`
	Detail string       `json:"error,omitempty"`
	Err    error        `json:"-"`
}

// SyncReport summarizes a sync run: per-object outcomes plus aggregate
// counts, and whether the manifest blob itself made it into the store.
type SyncReport struct {
	Objects  []ObjectResult `json:"objects"`
	Uploaded int            `json:"uploaded"`
	Present  int            `json:"present"`
	Failed   int            `json:"failed"`

	ManifestHash   string       `json:"manifestHash"`
	ManifestStatus ObjectStatus `json:"manifestStatus"`

	TotalBytes int64 `json:"totalBytes"`
}

// Ok reports whether every object, including the manifest blob, settled
// without exhausting its retries.
func (r *SyncReport) Ok() bool {
	return r.Failed == 0 && r.ManifestStatus != StatusFailed
}

// Syncer uploads the content a manifest (or a diff of one) implies into a
// BlobStore, skipping anything the store already holds. The store is the
// only shared resource; a Syncer itself is safe for concurrent use.
type Syncer struct {
	store BlobStore
	opts  *Options
}

// NewSyncer builds a sync engine around an injected blob store.
func NewSyncer(store BlobStore, opts ...Option) *Syncer {
	options := defaultEngineOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Syncer{store: store, opts: options}
}

// Sync ensures every blob the manifest references, plus the serialized
// manifest itself, exists in the store. Content already stored by hash is
// never re-transmitted, so re-running after a partial failure resumes
// exactly the missing subset.
func (s *Syncer) Sync(ctx context.Context, m *Manifest) (*SyncReport, error) {
	return s.run(ctx, derefEntries(m, m.Entries), m)
}

// SyncDiff uploads only the added and modified entries of a diff, then
// the manifest blob. Removed paths need no remote action: their content
// may still back other entries.
func (s *Syncer) SyncDiff(ctx context.Context, d *DiffResult, m *Manifest) (*SyncReport, error) {
	entries := make([]AssetEntry, 0, len(d.Added)+len(d.Modified))
	for _, path := range d.Added {
		entries = append(entries, d.Entries[path])
	}
	for _, path := range d.Modified {
		entries = append(entries, d.Entries[path])
	}
	return s.run(ctx, derefEntries(m, entries), m)
}

// derefEntries collapses entries into unique upload obligations keyed by
// content hash. Two files with identical bytes become one ref.
func derefEntries(m *Manifest, entries []AssetEntry) []CasObjectRef {
	byHash := make(map[string]CasObjectRef, len(entries))
	for _, e := range entries {
		if _, ok := byHash[e.Hash]; ok {
			continue
		}
		byHash[e.Hash] = CasObjectRef{
			Hash:    e.Hash,
			Size:    e.Size,
			srcPath: filepath.Join(m.Root, filepath.FromSlash(e.Path)),
		}
	}
	refs := make([]CasObjectRef, 0, len(byHash))
	for _, ref := range byHash {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Hash < refs[j].Hash })
	return refs
}

func (s *Syncer) run(ctx context.Context, refs []CasObjectRef, m *Manifest) (*SyncReport, error) {
	manifestData, err := m.Encode()
	if err != nil {
		return nil, err
	}

	report := &SyncReport{ManifestHash: HashBytes(manifestData)}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.opts.Concurrency)
	for _, ref := range refs {
		if ctx.Err() != nil {
			// Cancelled: stop queueing, let in-flight workers settle.
			break
		}
		p.Go(func() {
			res := s.syncObject(ctx, ref)
			mu.Lock()
			report.Objects = append(report.Objects, res)
			mu.Unlock()
		})
	}
	p.Wait()

	sort.Slice(report.Objects, func(i, j int) bool { return report.Objects[i].Hash < report.Objects[j].Hash })
	for _, res := range report.Objects {
		switch res.Status {
		case StatusUploaded:
			report.Uploaded++
			report.TotalBytes += res.Size
		case StatusPresent:
			report.Present++
		case StatusFailed:
			report.Failed++
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	// The manifest blob goes up strictly after all content uploads have
	// been attempted, so a reader that can see the manifest can assume
	// its content was at least tried.
	report.ManifestStatus = s.putBytes(ctx, report.ManifestHash, manifestData)
	if report.ManifestStatus == StatusUploaded {
		report.TotalBytes += int64(len(manifestData))
	}

	s.opts.Logger.Info("sync complete",
		"objects", len(report.Objects),
		"uploaded", report.Uploaded,
		"present", report.Present,
		"failed", report.Failed,
		"manifest", shortHash(report.ManifestHash))

	return report, nil
}

// syncObject performs the existence-check-then-put for one unique blob.
// Transient transport errors retry with exponential backoff; exhaustion
// marks this object failed without disturbing its siblings.
func (s *Syncer) syncObject(ctx context.Context, ref CasObjectRef) ObjectResult {
	res := ObjectResult{Hash: ref.Hash, Size: ref.Size}

	exists, err := retry(ctx, s.opts.RetryAttempts, s.opts.RetryBaseDelay, func() (bool, error) {
		return s.store.Exists(ctx, ref.Hash)
	})
	if err != nil {
		res.Status = StatusFailed
		res.Err = &TransportError{Hash: ref.Hash, Err: err}
		res.Detail = err.Error()
		s.opts.Logger.Warn("exists check failed", "hash", shortHash(ref.Hash), "error", err)
		return res
	}
	if exists {
		res.Status = StatusPresent
		return res
	}

	_, err = retry(ctx, s.opts.RetryAttempts, s.opts.RetryBaseDelay, func() (struct{}, error) {
		f, err := os.Open(ref.srcPath)
		if err != nil {
			return struct{}{}, err
		}
		defer f.Close()
		return struct{}{}, s.store.Put(ctx, ref.Hash, f, ref.Size)
	})
	if err != nil {
		res.Status = StatusFailed
		res.Err = &TransportError{Hash: ref.Hash, Err: err}
		res.Detail = err.Error()
		s.opts.Logger.Warn("upload failed", "hash", shortHash(ref.Hash), "path", ref.srcPath, "error", err)
		return res
	}

	res.Status = StatusUploaded
	s.opts.Logger.Debug("uploaded", "hash", shortHash(ref.Hash), "size", ref.Size)
	return res
}

// putBytes is the existence-check-then-put for an in-memory blob.
func (s *Syncer) putBytes(ctx context.Context, hash string, data []byte) ObjectStatus {
	exists, err := retry(ctx, s.opts.RetryAttempts, s.opts.RetryBaseDelay, func() (bool, error) {
		return s.store.Exists(ctx, hash)
	})
	if err == nil && exists {
		return StatusPresent
	}
	_, err = retry(ctx, s.opts.RetryAttempts, s.opts.RetryBaseDelay, func() (struct{}, error) {
		return struct{}{}, s.store.Put(ctx, hash, bytes.NewReader(data), int64(len(data)))
	})
	if err != nil {
		s.opts.Logger.Warn("manifest upload failed", "hash", shortHash(hash), "error", err)
		return StatusFailed
	}
	return StatusUploaded
}

func retry[T any](ctx context.Context, maxAttempts int, base time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * base // base, 2x, 4x, 8x...
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%w (last attempt: %v)", ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
