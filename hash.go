package assetsync

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// HashAlgorithm names the digest used for file content and for serialized
// manifests. Changing it is a breaking change gated by SchemaVersion.
const HashAlgorithm = "sha256"

// HashBytes returns the hex digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashReader streams r through the content hasher. Identical bytes always
// produce identical digests regardless of filesystem metadata.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile hashes the content of the file at path. Read errors come back
// as a *ReadError tagged with the path; the caller decides whether to skip
// or abort.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	defer f.Close()

	digest, err := HashReader(f)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	return digest, nil
}
