package assetsync

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory BlobStore that counts calls and can inject
// failures per hash.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	manifests map[string][]byte
	putCalls  map[string]int
	failPuts  map[string]int // remaining Put failures per hash
}

func newMemStore() *memStore {
	return &memStore{
		objects:   make(map[string][]byte),
		manifests: make(map[string][]byte),
		putCalls:  make(map[string]int),
		failPuts:  make(map[string]int),
	}
}

func (s *memStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[hash]
	return ok, nil
}

func (s *memStore) Put(ctx context.Context, hash string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls[hash]++
	if s.failPuts[hash] > 0 {
		s.failPuts[hash]--
		return errors.New("injected transport failure")
	}
	s.objects[hash] = data
	return nil
}

func (s *memStore) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memStore) PutManifest(ctx context.Context, filename string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[filename] = data
	return nil
}

func (s *memStore) totalPuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.putCalls {
		n += c
	}
	return n
}

func fastRetry() Option {
	return WithRetryPolicy(2, time.Millisecond)
}

func TestSyncUploadsAndStoresManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "b.txt", "beta")

	m, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	store := newMemStore()
	report, err := NewSyncer(store, fastRetry()).Sync(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, 0, report.Present)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, report.Ok())

	// Content blobs and the manifest blob are all addressable by hash.
	for _, e := range m.Entries {
		exists, err := store.Exists(context.Background(), e.Hash)
		require.NoError(t, err)
		assert.True(t, exists, "blob %s", e.Hash)
	}
	exists, err := store.Exists(context.Background(), report.ManifestHash)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, StatusUploaded, report.ManifestStatus)
}

func TestSyncDeduplicatesIdenticalContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.txt", "same bytes")
	writeFile(t, root, "two.txt", "same bytes")

	m, _, err := Scan(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, 2, m.Len(), "distinct entries for distinct paths")

	store := newMemStore()
	report, err := NewSyncer(store, fastRetry()).Sync(context.Background(), m)
	require.NoError(t, err)

	hash := HashBytes([]byte("same bytes"))
	assert.Equal(t, 1, store.putCalls[hash], "identical content collapses to one upload")
	assert.Equal(t, 1, report.Uploaded)
	assert.Len(t, report.Objects, 1)
}

func TestSyncIdempotentRerun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")

	m, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	store := newMemStore()
	syncer := NewSyncer(store, fastRetry())

	_, err = syncer.Sync(context.Background(), m)
	require.NoError(t, err)
	putsAfterFirst := store.totalPuts()

	report, err := syncer.Sync(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, putsAfterFirst, store.totalPuts(), "second run must not re-transmit anything")
	assert.Equal(t, 0, report.Uploaded)
	assert.Equal(t, 1, report.Present)
	assert.Equal(t, StatusPresent, report.ManifestStatus)
}

func TestSyncRetriesTransientFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")

	m, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	store := newMemStore()
	hash := HashBytes([]byte("alpha"))
	store.failPuts[hash] = 1 // first attempt fails, retry succeeds

	report, err := NewSyncer(store, fastRetry()).Sync(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, store.putCalls[hash])
}

func TestSyncPartialFailureIsolated(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.txt", "good")
	writeFile(t, root, "bad.txt", "bad")

	m, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	store := newMemStore()
	badHash := HashBytes([]byte("bad"))
	store.failPuts[badHash] = 100 // exhausts every attempt

	report, err := NewSyncer(store, fastRetry()).Sync(context.Background(), m)
	require.NoError(t, err, "per-object exhaustion must not abort the batch")

	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Ok())

	var failed *ObjectResult
	for i := range report.Objects {
		if report.Objects[i].Status == StatusFailed {
			failed = &report.Objects[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, badHash, failed.Hash)
	var terr *TransportError
	require.ErrorAs(t, failed.Err, &terr)

	// The manifest still goes up after content uploads were attempted.
	assert.Equal(t, StatusUploaded, report.ManifestStatus)

	// Re-running resumes exactly the missing subset.
	store.mu.Lock()
	store.failPuts[badHash] = 0
	store.mu.Unlock()

	report, err = NewSyncer(store, fastRetry()).Sync(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Present)
	assert.True(t, report.Ok())
}

func TestSyncDiffUploadsOnlyDelta(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "old.txt", "old")

	baseline, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	store := newMemStore()
	syncer := NewSyncer(store, fastRetry())
	_, err = syncer.Sync(context.Background(), baseline)
	require.NoError(t, err)

	writeFile(t, root, "new.txt", "new")
	current, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	d := Diff(baseline, current)
	report, err := syncer.SyncDiff(context.Background(), d, current)
	require.NoError(t, err)

	assert.Len(t, report.Objects, 1, "only the added entry is considered")
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, HashBytes([]byte("new")), report.Objects[0].Hash)
}

func TestSyncCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")

	m, _, err := Scan(context.Background(), root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newMemStore()
	report, err := NewSyncer(store, fastRetry()).Sync(ctx, m)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report, "report reflects whatever settled before cancellation")
	assert.Equal(t, 0, store.totalPuts())
	assert.NotEqual(t, StatusUploaded, report.ManifestStatus)
}
