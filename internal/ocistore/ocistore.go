// Package ocistore implements the BlobStore capability on an OCI
// registry. Registries are content-addressed stores in their own right:
// a blob's key is the sha256 digest of its bytes, which is exactly the
// engine's content hash, so existence checks and uploads map directly
// onto the distribution API. Named manifest copies are published as
// single-layer images tagged with the manifest filename.
package ocistore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

const digestAlgo = "sha256"

// Store is an OCI-registry-backed blob store for a single repository.
type Store struct {
	repo name.Repository
}

// New builds a store for a repository ref like "registry.example.com/team/assets".
func New(repoRef string) (*Store, error) {
	repo, err := name.NewRepository(repoRef)
	if err != nil {
		return nil, fmt.Errorf("invalid repository %q: %w", repoRef, err)
	}
	return &Store{repo: repo}, nil
}

// ParseURI splits an oci://registry/repo CAS URI.
func ParseURI(uri string) (string, error) {
	repoRef, ok := strings.CutPrefix(uri, "oci://")
	if !ok {
		return "", fmt.Errorf("not an oci URI: %s", uri)
	}
	if repoRef == "" {
		return "", fmt.Errorf("oci URI %s: missing repository", uri)
	}
	return repoRef, nil
}

// Exists probes the registry for the blob digest. Only a definitive 404
// reads as absent; auth failures and outages surface as errors so the
// caller's retry policy applies.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	layer, err := remote.Layer(s.digestRef(hash), s.options(ctx)...)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("probe %s: %w", hash, err)
	}
	// The layer handle is lazy; opening the stream is what actually hits
	// the registry.
	rc, err := layer.Compressed()
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("probe %s: %w", hash, err)
	}
	rc.Close()
	return true, nil
}

func isNotFound(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}

// Put uploads the blob. The registry independently verifies the digest,
// so a corrupt transfer can never be stored under our hash.
func (s *Store) Put(ctx context.Context, hash string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", hash, err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("blob %s: got %d bytes, want %d", hash, len(data), size)
	}

	layer := static.NewLayer(data, types.OCIUncompressedLayer)
	if err := remote.WriteLayer(s.repo, layer, s.options(ctx)...); err != nil {
		return fmt.Errorf("write layer %s: %w", hash, err)
	}
	return nil
}

// Get downloads a blob by digest.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	layer, err := remote.Layer(s.digestRef(hash), s.options(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("fetch layer %s: %w", hash, err)
	}
	rc, err := layer.Compressed()
	if err != nil {
		return nil, fmt.Errorf("fetch layer %s: %w", hash, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read layer %s: %w", hash, err)
	}
	return data, nil
}

// PutManifest publishes the manifest as a one-layer image tagged with its
// filename, so a worker can pull a snapshot by name.
func (s *Store) PutManifest(ctx context.Context, filename string, data []byte) error {
	tag, err := name.NewTag(s.repo.String() + ":" + sanitizeTag(filename))
	if err != nil {
		return fmt.Errorf("manifest tag for %q: %w", filename, err)
	}

	img, err := mutate.AppendLayers(empty.Image, static.NewLayer(data, types.OCIUncompressedLayer))
	if err != nil {
		return fmt.Errorf("build manifest image: %w", err)
	}

	if err := remote.Write(tag, img, s.options(ctx)...); err != nil {
		return fmt.Errorf("push manifest %s: %w", filename, err)
	}
	return nil
}

func (s *Store) digestRef(hash string) name.Digest {
	return s.repo.Digest(digestAlgo + ":" + hash)
}

func (s *Store) options(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}
}

// sanitizeTag maps a manifest filename onto the tag grammar. Filenames
// are label + hex hash + ".manifest.json", all of which tags allow, but a
// user label can start with a separator.
func sanitizeTag(filename string) string {
	tag := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, filename)
	if len(tag) > 127 {
		tag = tag[:127]
	}
	return strings.TrimLeft(tag, ".-")
}
