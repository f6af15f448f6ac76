package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveAndOpen(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)

	key, err := fs.Save(ctx, "./ats/applications/1/cv.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "ats/applications/1/cv.pdf", key)

	obj, err := fs.Open(ctx, key)
	require.NoError(t, err)
	defer obj.Body.Close()
	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))
	assert.Equal(t, int64(8), obj.Size)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, "cv.pdf", obj.Name)
}

func TestFileStoreErrors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fs, err := NewFileStore(root)
	require.NoError(t, err)

	_, err = fs.Open(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir"), 0o755))
	_, err = fs.Open(ctx, "dir")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fs.Open(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrBadPath)

	_, err = fs.Save(ctx, "../escape.txt", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, ErrBadPath)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnknownContentTypeFallsBack(t *testing.T) {
	assert.Equal(t, "application/octet-stream", contentTypeFor("blob.unknownext", ""))
	assert.Equal(t, "text/x-custom", contentTypeFor("a.txt", "text/x-custom"))
}

func TestNewSelectsBackend(t *testing.T) {
	b, err := New(context.Background(), Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, b)

	_, err = New(context.Background(), Config{Backend: "minio"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Backend: "tape"})
	assert.Error(t, err)
}

func TestMapMinIOError(t *testing.T) {
	assert.ErrorIs(t, mapMinIOError(minio.ErrorResponse{Code: "NoSuchKey"}), ErrNotFound)
	assert.ErrorIs(t, mapMinIOError(minio.ErrorResponse{Code: "AccessDenied"}), ErrReadFailed)
}
