// Package diskstore implements the BlobStore capability on the local
// filesystem: git-style sharded object directories, optional zstd
// compression, and an LRU read cache. It doubles as a test double for the
// remote backends and as a staging cache on submitter machines.
package diskstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quartzrender/assetsync/internal/compression"
)

const defaultCacheEntries = 256

// Object files start with one marker byte recording how the payload was
// stored. Sniffing the payload instead would corrupt a user blob that is
// itself a valid zstd frame.
const (
	objRaw  byte = 0x00
	objZstd byte = 0x01
)

// Store is a content-addressed blob store rooted at a local directory.
//
// Layout:
//
//	baseDir/
//	  objects/ab/cdef...   content blobs, sharded by hash prefix
//	  Manifests/<name>     named manifest copies
//
// Writes are atomic per blob: content lands in a temp file and is renamed
// into place, so concurrent or interrupted syncs never leave a torn
// object behind.
type Store struct {
	baseDir    string
	compressor *compression.Compressor
	cache      *lru.Cache[string, []byte]
}

// Option configures a Store.
type Option func(*settings)

type settings struct {
	cacheEntries     int
	compressionLevel int
	compress         bool
}

// WithCompression enables zstd compression at the given level.
func WithCompression(level int) Option {
	return func(s *settings) {
		s.compress = true
		s.compressionLevel = level
	}
}

// WithCacheEntries sizes the in-memory read cache.
func WithCacheEntries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.cacheEntries = n
		}
	}
}

// New creates or opens a disk store at baseDir.
func New(baseDir string, opts ...Option) (*Store, error) {
	cfg := &settings{cacheEntries: defaultCacheEntries, compressionLevel: compression.LevelDefault}
	for _, opt := range opts {
		opt(cfg)
	}

	for _, dir := range []string{objectsDir(baseDir), manifestsDir(baseDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	compressor, err := compression.NewCompressor(cfg.compressionLevel, cfg.compress)
	if err != nil {
		return nil, fmt.Errorf("init compressor: %w", err)
	}

	cache, err := lru.New[string, []byte](cfg.cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	return &Store{baseDir: baseDir, compressor: compressor, cache: cache}, nil
}

// Exists reports whether the store holds the blob.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.cache.Contains(hash) {
		return true, nil
	}
	_, err := os.Stat(s.objectPath(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Put stores the blob under its content hash. Re-putting an existing
// hash is a no-op.
func (s *Store) Put(ctx context.Context, hash string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.objectPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", hash, err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("blob %s: got %d bytes, want %d", hash, len(data), size)
	}

	payload, compressed := s.compressor.Compress(data)
	marker := objRaw
	if compressed {
		marker = objZstd
	}
	stored := make([]byte, 0, len(payload)+1)
	stored = append(stored, marker)
	stored = append(stored, payload...)
	if err := s.writeAtomic(path, stored); err != nil {
		return err
	}
	s.cache.Add(hash, data)
	return nil
}

// Get retrieves a blob by hash.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if data, ok := s.cache.Get(hash); ok {
		return data, nil
	}

	stored, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", hash)
		}
		return nil, fmt.Errorf("read object %s: %w", hash, err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("object %s: empty file", hash)
	}

	var data []byte
	switch stored[0] {
	case objRaw:
		data = stored[1:]
	case objZstd:
		data, err = s.compressor.Decompress(stored[1:])
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", hash, err)
		}
	default:
		return nil, fmt.Errorf("object %s: unknown storage marker %#x", hash, stored[0])
	}

	s.cache.Add(hash, data)
	return data, nil
}

// PutManifest publishes a named manifest copy under Manifests/.
func (s *Store) PutManifest(ctx context.Context, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeAtomic(filepath.Join(manifestsDir(s.baseDir), filename), data)
}

// Close releases the compressor.
func (s *Store) Close() error {
	return s.compressor.Close()
}

func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("stage write: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("stage write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("stage write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit write: %w", err)
	}
	return nil
}

func (s *Store) objectPath(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(objectsDir(s.baseDir), hash)
	}
	return filepath.Join(objectsDir(s.baseDir), hash[:2], hash[2:])
}

func objectsDir(base string) string   { return filepath.Join(base, "objects") }
func manifestsDir(base string) string { return filepath.Join(base, "Manifests") }
