package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/strata-db/strata/internal/fs"
)

// LocalStore implements BlobStore on a local directory.
//
// Put writes to a hidden temp file, fsyncs it, then renames it into
// place and fsyncs the directory, so a crash never exposes a partial
// blob. This is the crash-consistency foundation the ledger relies on.
type LocalStore struct {
	fs   fs.FileSystem
	root string
}

// NewLocalStore creates a LocalStore rooted at the given directory.
// If fsys is nil the local file system is used.
func NewLocalStore(fsys fs.FileSystem, root string) (*LocalStore, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &LocalStore{fs: fsys, root: root}, nil
}

// Root returns the store's root directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	f, err := s.fs.OpenFile(s.path(name), os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &localBlob{f: f, size: info.Size()}, nil
}

// Put atomically writes a blob via temp file and rename.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	target := s.path(name)
	if dir := filepath.Dir(target); dir != s.root {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := target + ".tmp"

	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return fs.SyncDir(s.fs, filepath.Dir(target))
}

// Delete removes a blob. Missing blobs are ignored.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := s.fs.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns blob names with the given prefix, sorted.
// Only the directory implied by the prefix is scanned.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	dir, base := filepath.Split(filepath.FromSlash(prefix))
	entries, err := s.fs.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if strings.HasPrefix(e.Name(), base) {
			names = append(names, filepath.ToSlash(filepath.Join(dir, e.Name())))
		}
	}
	sort.Strings(names)
	return names, nil
}

type localBlob struct {
	f    fs.File
	size int64
}

func (b *localBlob) ReadAt(p []byte, off int64) (int, error) { return b.f.ReadAt(p, off) }
func (b *localBlob) Close() error                            { return b.f.Close() }
func (b *localBlob) Size() int64                             { return b.size }
