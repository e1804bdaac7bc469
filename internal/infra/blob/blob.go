// Package blob is the durable byte storage for uploaded containers. The
// catalog only needs write, read back and delete by key; pre-signed URLs
// and listing are deliberately out of scope.
package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/scidatahub/containerdb/internal/config"
)

// Store is the interface for byte storage backends.
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New builds the configured driver.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Blob.Driver {
	case "fs", "":
		return NewFilesystem(cfg.Blob.Root)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
}
