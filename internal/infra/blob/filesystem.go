package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem stores blobs under a root directory. Suited for single node
// deployments and tests.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: abs}, nil
}

func (f *Filesystem) path(key string) (string, error) {
	p := filepath.Join(f.root, filepath.FromSlash(key))
	// Keys are derived from identifiers, but refuse escapes anyway.
	if !strings.HasPrefix(p, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob key %q escapes storage root", key)
	}
	return p, nil
}

func (f *Filesystem) Write(_ context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (f *Filesystem) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (f *Filesystem) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
