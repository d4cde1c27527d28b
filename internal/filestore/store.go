// Package filestore defines the unified interface for the object storage
// holding the product archive.
//
// All providers (MinIO-compatible endpoints, plain S3, …) implement the
// Store interface. Callers depend only on this package — never on a
// specific provider package.
//
// Usage:
//
//	fsCfg, err := filestore.FromAppConfig(cfg)
//	if err != nil { ... }
//	store, err := minio.New(ctx, fsCfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	obj, err := store.GetObject(ctx, filestore.EODataBucket, "Sentinel-3/...")
package filestore

import (
	"context"
	"time"
)

// Store is the single interface all object storage providers must
// implement. Scoped to read operations: the product archive is never
// written through this library.
type Store interface {
	// Ping verifies the storage backend is reachable and the configured
	// credentials can see the default bucket.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// ListObjects returns the objects in bucket that match opts.
	// Virtual directory entries (common prefixes) are included when
	// opts.Recursive is false.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// GetObject opens a streaming handle to the object at key inside
	// bucket. The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// Download copies the object at key inside bucket to the local file
	// at path, creating or truncating it.
	Download(ctx context.Context, bucket, key, path string) error

	// PresignGetURL returns a time-limited URL that allows anyone to
	// download the object at key inside bucket without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
