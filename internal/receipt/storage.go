package receipt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Storage defines the interface for attachment file storage
type Storage interface {
	// Save saves a file and returns its full path
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by name
	Get(filename string) ([]byte, error)

	// Delete removes a file
	Delete(filename string) error

	// Exists reports whether a file is already stored
	Exists(filename string) bool

	// Path returns the full path a file is stored under
	Path(filename string) string

	// List returns the full paths of all stored files, sorted by name
	List() ([]string, error)
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Path returns the full path of filename, confined to the storage directory
func (l *LocalStorage) Path(filename string) string {
	return filepath.Join(l.basePath, filepath.Base(filename))
}

// Save saves a file to local storage
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := l.Path(filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(filename string) ([]byte, error) {
	data, err := os.ReadFile(l.Path(filename))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(filename string) error {
	if err := os.Remove(l.Path(filename)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Exists reports whether filename is stored as a regular file
func (l *LocalStorage) Exists(filename string) bool {
	info, err := os.Stat(l.Path(filename))
	return err == nil && info.Mode().IsRegular()
}

// List returns the full paths of all regular files in the storage directory
func (l *LocalStorage) List() ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing storage directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(l.basePath, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
