package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Store defines the interface for the upload directory backend.
// This allows swapping the filesystem for another backend later and lets
// tests inject failures.
type Store interface {
	EnsureDir() error
	Create(name string) (io.WriteCloser, error)
	Path(name string) string
	Delete(name string) error
	Entries() ([]Entry, error)
}

// Entry describes one file in the upload directory.
type Entry struct {
	Name    string
	ModTime time.Time
}

// FileSystemStore keeps uploaded files in a single local directory.
// File names are chosen by the caller and never derived from client input.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the upload directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Create opens a new file for writing. The file must not already exist;
// a stale file left by a previous process surfaces as fs.ErrExist so the
// caller can pick a different name.
func (fs *FileSystemStore) Create(name string) (io.WriteCloser, error) {
	file, err := os.OpenFile(fs.Path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Path returns the storage path for a file name.
func (fs *FileSystemStore) Path(name string) string {
	return filepath.Join(fs.basePath, name)
}

// Delete removes a stored file. Missing files are not an error.
func (fs *FileSystemStore) Delete(name string) error {
	if err := os.Remove(fs.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", fs.Path(name), err)
	}
	return nil
}

// Entries lists the files currently in the upload directory with their
// modification times.
func (fs *FileSystemStore) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory %s: %w", fs.basePath, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Deleted between ReadDir and Info; skip it.
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), ModTime: info.ModTime()})
	}
	return entries, nil
}
