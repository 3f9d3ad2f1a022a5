// Package snapshot persists JSON projections of typed objects through a
// pluggable backend and restores them through the object's guard.
package snapshot

import (
	"typedobject/internal/snapshot/core"
)

type (
	// Driver identifies a snapshot backend driver.
	Driver = core.Driver
	// PutOptions configures a snapshot write.
	PutOptions = core.PutOptions
	// Info describes stored snapshot metadata.
	Info = core.Info
	// Backend is the interface for snapshot storage backends.
	Backend = core.Backend
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
	// DriverSQLite is the single-file SQLite driver.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the Postgres driver.
	DriverPostgres = core.DriverPostgres
)

var (
	// ErrNotFound reports a missing snapshot.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidName reports an unusable snapshot name.
	ErrInvalidName = core.ErrInvalidName
)
