package assetsync

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Scan walks the tree rooted at root and builds a manifest of every
// regular file. Symlinks are followed; each physical directory identity
// is visited at most once per scan, so link cycles degrade to a warning
// instead of unbounded recursion. Unreadable entries are excluded and
// surfaced as warnings rather than failing the scan: a partial manifest
// is more useful than none, as long as the omission is visible.
func Scan(ctx context.Context, root string, opts ...Option) (*Manifest, []Warning, error) {
	options := defaultEngineOptions()
	for _, opt := range opts {
		opt(options)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	if info, err := os.Stat(absRoot); err != nil {
		return nil, nil, fmt.Errorf("stat root %s: %w", absRoot, err)
	} else if !info.IsDir() {
		return nil, nil, fmt.Errorf("root %s: not a directory", absRoot)
	}

	s := &treeScanner{
		root:    absRoot,
		visited: make(map[string]struct{}),
	}
	if err := s.markVisited(absRoot); err != nil {
		return nil, nil, fmt.Errorf("resolve root %s: %w", absRoot, err)
	}
	if err := s.walk(ctx, absRoot, ""); err != nil {
		return nil, nil, err
	}

	// Hash in parallel; ordering is restored by the sort in NewManifest,
	// so completion order is never observable.
	var (
		mu      sync.Mutex
		entries []AssetEntry
	)
	p := pool.New().WithMaxGoroutines(options.Concurrency)
	for _, task := range s.files {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			digest, err := HashFile(task.abs)
			if err != nil {
				s.warn(Warning{Kind: WarnUnreadable, Path: task.rel, Message: err.Error()})
				return
			}
			mu.Lock()
			entries = append(entries, AssetEntry{
				Path:  task.rel,
				Hash:  digest,
				Size:  task.size,
				MTime: task.mtime,
			})
			mu.Unlock()
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	return NewManifest(absRoot, entries), s.warnings, nil
}

type fileTask struct {
	abs   string
	rel   string
	size  int64
	mtime int64
}

type treeScanner struct {
	root  string
	files []fileTask

	// visited holds resolved physical directory paths for the duration
	// of one scan. Guarded: warnings arrive from hash workers too.
	mu       sync.Mutex
	visited  map[string]struct{}
	warnings []Warning
}

func (s *treeScanner) walk(ctx context.Context, dir, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		s.warn(Warning{Kind: WarnUnreadable, Path: rel, Message: err.Error()})
		return nil
	}

	for _, de := range dirents {
		abs := filepath.Join(dir, de.Name())
		childRel := path.Join(rel, de.Name())

		mode := de.Type()
		if mode&fs.ModeSymlink != 0 {
			// Resolve the link target; dangling links are a warning.
			info, err := os.Stat(abs)
			if err != nil {
				s.warn(Warning{Kind: WarnUnreadable, Path: childRel, Message: err.Error()})
				continue
			}
			if info.IsDir() {
				if err := s.descend(ctx, abs, childRel); err != nil {
					return err
				}
			} else if info.Mode().IsRegular() {
				s.files = append(s.files, fileTask{
					abs:   abs,
					rel:   childRel,
					size:  info.Size(),
					mtime: info.ModTime().UnixMicro(),
				})
			}
			continue
		}

		switch {
		case de.IsDir():
			if err := s.descend(ctx, abs, childRel); err != nil {
				return err
			}
		case mode.IsRegular():
			info, err := de.Info()
			if err != nil {
				s.warn(Warning{Kind: WarnUnreadable, Path: childRel, Message: err.Error()})
				continue
			}
			s.files = append(s.files, fileTask{
				abs:   abs,
				rel:   childRel,
				size:  info.Size(),
				mtime: info.ModTime().UnixMicro(),
			})
		default:
			// sockets, device nodes etc. have no content to snapshot
		}
	}

	return nil
}

func (s *treeScanner) descend(ctx context.Context, dir, rel string) error {
	seen, err := s.checkVisited(dir)
	if err != nil {
		s.warn(Warning{Kind: WarnUnreadable, Path: rel, Message: err.Error()})
		return nil
	}
	if seen {
		s.warn(Warning{Kind: WarnSymlinkLoop, Path: rel, Message: "directory already visited, skipping"})
		return nil
	}
	return s.walk(ctx, dir, rel)
}

// checkVisited records dir's physical identity, reporting whether it was
// already seen this scan. Identity is the fully resolved path, which is
// stable across however many symlinks point at the directory.
func (s *treeScanner) checkVisited(dir string) (bool, error) {
	phys, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[phys]; ok {
		return true, nil
	}
	s.visited[phys] = struct{}{}
	return false, nil
}

func (s *treeScanner) markVisited(dir string) error {
	_, err := s.checkVisited(dir)
	return err
}

func (s *treeScanner) warn(w Warning) {
	s.mu.Lock()
	s.warnings = append(s.warnings, w)
	s.mu.Unlock()
}
