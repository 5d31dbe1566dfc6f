package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for uploaded document storage
type Storage interface {
	// Save writes data under name and returns the stored name
	Save(name string, data []byte) (string, error)

	// Get reads a stored document
	Get(name string) ([]byte, error)

	// Path returns the filesystem path of a stored document
	Path(name string) string

	// Delete removes a stored document
	Delete(name string) error
}

// LocalStorage keeps documents in a directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage, creating basePath if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes a document to the storage directory
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	if err := os.WriteFile(l.Path(name), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get reads a document from the storage directory
func (l *LocalStorage) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(l.Path(name))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Path joins name onto the storage directory. Only the base of name is used.
func (l *LocalStorage) Path(name string) string {
	return filepath.Join(l.basePath, filepath.Base(name))
}

// Delete removes a document from the storage directory
func (l *LocalStorage) Delete(name string) error {
	if err := os.Remove(l.Path(name)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
