// Package storage defines the interfaces of the object storage adapters the run report is written to.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload writes data to objectName in bucket. An empty bucket uses the connection's default bucket.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName for reading. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName from bucket.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named connection to one storage backend.
type StorageConnection interface {
	StorageExecutor
	// Name returns the configured connection name.
	Name() string
	// Type returns the storage type (e.g., "local").
	Type() string
	// Close releases the resources held by the connection.
	Close() error
}

// StorageProvider creates and caches the connections of one storage type.
type StorageProvider interface {
	// GetConnection retrieves the connection with the specified name.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider.
	Type() string
	// ForceReconnect closes and re-creates the connection with the specified name.
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves a named connection through the provider of its configured type.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
