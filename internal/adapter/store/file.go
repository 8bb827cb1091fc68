package store

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"camkeep/internal/domain"
)

var errOutsideRoot = errors.New("path is outside the storage directory")

// FileStore lists and deletes recordings under a storage directory.
type FileStore struct {
	root   string
	logger domain.Logger
}

// NewFileStore creates a store rooted at root. A symlinked root is resolved
// to its target so scans and removals agree on one path.
func NewFileStore(root string, logger domain.Logger) *FileStore {
	return &FileStore{root: resolve(root), logger: logger}
}

// Root returns the absolute, symlink-free storage directory.
func (s *FileStore) Root() string {
	return s.root
}

// EnsureDir creates the storage directory if it does not exist.
func (s *FileStore) EnsureDir() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return err
	}
	s.root = resolve(s.root)
	return nil
}

// resolve returns path made absolute with symlinks evaluated. Parts that do
// not exist yet are left as they are.
func resolve(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return path
}

// Scan lazily walks dir and yields every regular file. Each range over the
// returned sequence performs a fresh walk. dir itself may be a symlink; links
// below it are never followed or yielded, nor are other irregular files.
// Unreadable entries are logged and skipped. Cancelling ctx ends the walk early.
func (s *FileStore) Scan(ctx context.Context, dir string) iter.Seq[domain.FileRecord] {
	return func(yield func(domain.FileRecord) bool) {
		root := resolve(dir)

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				s.logger.Warn("skipping unreadable entry", "err", &domain.ScanError{Path: path, Err: err})
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				if d.Type()&fs.ModeSymlink != 0 {
					s.logger.Debug("skipping symlink", "path", path)
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				s.logger.Warn("skipping unreadable entry", "err", &domain.ScanError{Path: path, Err: err})
				return nil
			}
			if !yield(domain.FileRecord{Path: path, Size: info.Size(), ModTime: info.ModTime()}) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// Remove deletes a single file inside the storage directory. The file's
// directory is resolved first, so a path reached through a link that leaves
// the root is refused.
func (s *FileStore) Remove(path string) error {
	target := filepath.Join(resolve(filepath.Dir(path)), filepath.Base(path))
	rel, err := filepath.Rel(s.root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &domain.DeleteError{Path: path, Err: errOutsideRoot}
	}
	if err := os.Remove(target); err != nil {
		return &domain.DeleteError{Path: path, Err: err}
	}
	return nil
}
