package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"time"
)

var (
	ErrNotFound   = errors.New("not_found")
	ErrReadFailed = errors.New("read_failed")
)

// Object is an open stored file. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Name        string
	ModTime     time.Time
}

// Backend persists and serves binary attachments addressed by relative keys.
type Backend interface {
	Open(ctx context.Context, key string) (*Object, error)
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

func contentTypeFor(name, stored string) string {
	if stored != "" {
		return stored
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
