package storage

import (
	"context"
	"fmt"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Config selects and configures the attachment backend.
type Config struct {
	Backend string // "fs" (default) or "minio"
	Root    string
	MinIO   MinIOConfig
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFileStore(cfg.Root)
	case "minio":
		return NewMinIOStore(ctx, &cfg.MinIO)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
