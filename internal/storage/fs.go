package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps attachments on the local filesystem below Root.
type FileStore struct {
	Root string
}

func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("files root: %w", err)
	}
	if err := EnsureDir(abs); err != nil {
		return nil, err
	}
	return &FileStore{Root: abs}, nil
}

func (s *FileStore) Open(ctx context.Context, key string) (*Object, error) {
	p, err := SafeJoin(s.Root, key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if fi.IsDir() {
		return nil, ErrNotFound
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return &Object{
		Body:        f,
		Size:        fi.Size(),
		ContentType: contentTypeFor(fi.Name(), ""),
		Name:        fi.Name(),
		ModTime:     fi.ModTime(),
	}, nil
}

// Save writes r to key atomically and returns the normalized key.
func (s *FileStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	p, err := SafeJoin(s.Root, key)
	if err != nil {
		return "", err
	}
	if err := EnsureDir(filepath.Dir(p)); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename %s: %w", key, err)
	}
	rel, err := filepath.Rel(s.Root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
