// Package core defines the contract shared by snapshot backends. A snapshot
// is the JSON projection of a typed object stored under a name.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a concrete snapshot backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
	// DriverSQLite represents a single-file SQLite database.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres represents a Postgres database.
	DriverPostgres Driver = "postgres"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// Info describes a stored snapshot.
type Info struct {
	Name         string            `json:"name"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Backend stores snapshot documents by name.
type Backend interface {
	// Put creates or replaces the snapshot stored under name.
	Put(ctx context.Context, name string, data []byte, opts PutOptions) (Info, error)
	// Get returns the snapshot contents. Missing snapshots yield ErrNotFound.
	Get(ctx context.Context, name string) (Info, []byte, error)
	// Head returns metadata only.
	Head(ctx context.Context, name string) (Info, error)
	// Delete removes a snapshot. Returns (false, nil) if not found.
	Delete(ctx context.Context, name string) (bool, error)
	// List returns snapshots whose name has the prefix, ascending by name.
	List(ctx context.Context, prefix string) ([]Info, error)
	// Driver returns the backend identifier.
	Driver() Driver
}

// ErrNotFound is returned when a named snapshot does not exist.
var ErrNotFound = errors.New("snapshot: not found")

// ErrInvalidName is returned for empty or path-escaping snapshot names.
var ErrInvalidName = errors.New("snapshot: invalid name")
