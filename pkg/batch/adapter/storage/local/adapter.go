// Package local stores objects as files below a base directory.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// ProviderType is the storage type served by this package.
const ProviderType = "local"

// localAdapter maps buckets to sub-directories of BaseDir and objects to files.
type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

var _ storage.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates the connection, creating BaseDir when it does not exist yet.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storage.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage '%s': base_dir must be specified", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage '%s': create base_dir '%s': %w", name, cfg.BaseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local storage '%s': stat base_dir '%s': %w", name, cfg.BaseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage '%s': base_dir '%s' is not a directory", name, cfg.BaseDir)
	}
	return &localAdapter{cfg: cfg, name: name}, nil
}

func (a *localAdapter) Close() error {
	logger.Debugf("Local storage '%s' closed.", a.name)
	return nil
}

func (a *localAdapter) Type() string { return ProviderType }

func (a *localAdapter) Name() string { return a.name }

// Upload writes the object through a temporary file in the target directory so readers never see a
// partially written object.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temporary file in '%s': %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("write '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write '%s': %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("move object into place at '%s': %w", fullPath, err)
	}
	logger.Debugf("Local storage '%s': wrote %s (%s).", a.name, fullPath, contentType)
	return nil
}

func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open '%s': %w", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the bucket directory in lexical order. Object names are slash separated and
// relative to the bucket.
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	root, err := a.resolvePath(bucket, "")
	if err != nil {
		return err
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		objectName := filepath.ToSlash(rel)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("list '%s' with prefix '%s': %w", root, prefix, err)
	}
	return nil
}

// DeleteObject removes the object. Deleting a missing object is not an error.
func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath maps bucket and objectName below BaseDir and rejects names that escape it.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.cfg.BaseDir, bucket, filepath.FromSlash(objectName))

	rel, err := filepath.Rel(a.cfg.BaseDir, fullPath)
	if err != nil {
		return "", fmt.Errorf("local storage '%s': resolve '%s': %w", a.name, objectName, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("local storage '%s': object '%s' is outside of base_dir", a.name, objectName)
	}
	return fullPath, nil
}
