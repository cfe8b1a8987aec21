// Package archive stores uploaded blueprint archives on local disk and reads
// the inputs they declare.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no archive is stored for a blueprint.
var ErrNotFound = errors.New("archive not found")

// FileStore keeps one file per blueprint under a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(blueprintID string) string {
	return filepath.Join(s.root, filepath.Base(blueprintID)+".archive")
}

// Put stores the archive for a blueprint, replacing any previous one.
func (s *FileStore) Put(blueprintID string, r io.Reader) error {
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(blueprintID)); err != nil {
		return fmt.Errorf("store archive: %w", err)
	}
	return nil
}

// Open returns a reader for the stored archive.
func (s *FileStore) Open(blueprintID string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(blueprintID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, blueprintID)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return f, nil
}

// Delete removes the stored archive. A missing archive is not an error.
func (s *FileStore) Delete(blueprintID string) error {
	err := os.Remove(s.path(blueprintID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete archive: %w", err)
	}
	return nil
}
