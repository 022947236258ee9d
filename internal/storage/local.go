// Package storage abstracts where evidence images live. The API hands out
// relative URLs so the frontend works the same regardless of the backing
// store.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StoredFile describes a saved file.
type StoredFile struct {
	Name string
	URL  string
	Size int64
}

// FileStore saves and deletes uploaded files.
type FileStore interface {
	Save(data []byte, ext string) (StoredFile, error)
	Delete(url string) error
}

// LocalStore writes files under a directory served statically at /uploads.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the uploads directory if missing.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes the data under a random name, keeping the extension.
func (s *LocalStore) Save(data []byte, ext string) (StoredFile, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := uuid.NewString() + strings.ToLower(ext)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return StoredFile{}, fmt.Errorf("write upload: %w", err)
	}
	return StoredFile{
		Name: name,
		URL:  "/uploads/" + name,
		Size: int64(len(data)),
	}, nil
}

// Delete removes the file behind a previously issued URL. Unknown or already
// missing files are not an error: overwrite flows call Delete best-effort.
func (s *LocalStore) Delete(url string) error {
	name := strings.TrimPrefix(url, "/uploads/")
	// Reject anything that could escape the uploads directory.
	if name == "" || name != filepath.Base(name) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
