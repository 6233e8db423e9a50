// Package assetsync ships a file tree's content into a content-addressed
// store without re-uploading anything the store already has.
//
// A snapshot walks a root directory and produces a Manifest: a versioned,
// hash-stable description of every file and its SHA-256 digest. Manifests
// from two points in time (or a manifest and the live tree) can be diffed,
// and the resulting delta synced into any BlobStore backend, deduplicated
// by content hash.
//
// Basic usage:
//
//	// Snapshot a directory into a manifest file
//	handle, warnings, _ := assetsync.Snapshot(ctx, "/scene/project", "/scene/manifests", "my-job")
//
//	// Diff the manifest against the live tree
//	diff, _, _ := assetsync.DiffAgainstRoot(ctx, handle.LocalPath, "/scene/project")
//
//	// Upload missing content + the manifest itself
//	store, _ := diskstore.New("/var/cache/assetsync")
//	report, _, _ := assetsync.Upload(ctx, handle.LocalPath, store)
//
// Backends for local disk, S3 buckets and OCI registries live under
// internal/ and are wired up by the assetsync CLI; any implementation of
// the three-method BlobStore capability works.
package assetsync
