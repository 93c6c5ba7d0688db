package store

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// FileSystem defines the interface for file system operations
// This abstraction allows for easy mocking in tests and potential
// alternative storage backends in the future.
type FileSystem interface {
	// Stat returns file info for the given path
	Stat(name string) (fs.FileInfo, error)

	// ReadFile reads the entire file and returns its contents
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to a file with the specified permissions
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Rename renames (moves) a file from oldpath to newpath
	Rename(oldpath, newpath string) error

	// Remove removes the named file
	Remove(name string) error
}

// OSFileSystem is the default implementation using the os package
type OSFileSystem struct{}

func (fs *OSFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (fs *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (fs *OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (fs *OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (fs *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// BillyFileSystem adapts a go-billy filesystem, such as memfs or osfs
// rooted at a data directory.
type BillyFileSystem struct {
	bfs billy.Filesystem
}

// NewBillyFileSystem wraps bfs.
func NewBillyFileSystem(bfs billy.Filesystem) *BillyFileSystem {
	return &BillyFileSystem{bfs: bfs}
}

// NewMemoryFileSystem returns an empty in-memory filesystem.
func NewMemoryFileSystem() *BillyFileSystem {
	return NewBillyFileSystem(memfs.New())
}

// Unwrap returns the underlying billy.Filesystem.
func (b *BillyFileSystem) Unwrap() billy.Filesystem {
	return b.bfs
}

func (b *BillyFileSystem) Stat(name string) (fs.FileInfo, error) {
	return b.bfs.Stat(normalize(name))
}

func (b *BillyFileSystem) ReadFile(name string) ([]byte, error) {
	f, err := b.bfs.Open(normalize(name))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (b *BillyFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	f, err := b.bfs.OpenFile(normalize(name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (b *BillyFileSystem) Rename(oldpath, newpath string) error {
	return b.bfs.Rename(normalize(oldpath), normalize(newpath))
}

func (b *BillyFileSystem) Remove(name string) error {
	return b.bfs.Remove(normalize(name))
}

func normalize(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}
