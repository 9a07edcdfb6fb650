package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DiskStore хранит блобы файлами в одной директории, имя файла - id.
type DiskStore struct {
	dir string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore создаёт директорию, если её нет.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) path(id string) string {
	return filepath.Join(s.dir, id)
}

// Put пишет во временный файл, делает fsync и атомарно переименовывает.
// блоб либо виден целиком, либо не виден вовсе.
func (s *DiskStore) Put(ctx context.Context, id string, r io.Reader, size int64, _ string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath := s.path(id)
	if _, err := os.Stat(fullPath); err == nil {
		return ErrBlobExists
	}

	f, err := os.CreateTemp(s.dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpPath := f.Name()

	written, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if size >= 0 && written != size {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("blob size mismatch: expected %d, wrote %d", size, written)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to fsync blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close blob: %w", err)
	}

	// link вместо rename: не перезаписывает существующий блоб
	if err := os.Link(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		if os.IsExist(err) {
			return ErrBlobExists
		}
		return fmt.Errorf("failed to publish blob: %w", err)
	}
	_ = os.Remove(tmpPath)

	return nil
}

func (s *DiskStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", id, err)
	}
	return f, nil
}

func (s *DiskStore) Exists(_ context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, ErrInvalidID
	}
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob %s: %w", id, err)
}

func (s *DiskStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}
