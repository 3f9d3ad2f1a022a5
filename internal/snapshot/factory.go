package snapshot

import (
	"context"
	"fmt"
	"os"

	"typedobject/internal/infra/snapshot/fs"
	"typedobject/internal/infra/snapshot/memory"
	"typedobject/internal/infra/snapshot/postgres"
	"typedobject/internal/infra/snapshot/s3"
	"typedobject/internal/infra/snapshot/sqlite"
)

// Open selects a Backend implementation using environment variables.
//
//	TYPEDOBJECT_SNAPSHOT_DRIVER: fs|s3|memory|sqlite|postgres (default fs)
//	TYPEDOBJECT_SNAPSHOT_FS_ROOT: directory root when driver=fs (default ./snapshots)
//	TYPEDOBJECT_SNAPSHOT_SQLITE_PATH: database file when driver=sqlite (default typedobject.db)
//	TYPEDOBJECT_SNAPSHOT_POSTGRES_DSN: connection string when driver=postgres
//	(S3 specific variables documented in the s3 backend)
//
// Backends holding a database handle implement io.Closer.
func Open(ctx context.Context) (Backend, error) {
	driver := os.Getenv("TYPEDOBJECT_SNAPSHOT_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	var (
		backend Backend
		err     error
	)
	switch Driver(driver) {
	case DriverFilesystem:
		backend, err = fs.New(os.Getenv("TYPEDOBJECT_SNAPSHOT_FS_ROOT"))
	case DriverS3:
		backend, err = s3.OpenFromEnv(ctx)
	case DriverMemory:
		backend = memory.New()
	case DriverSQLite:
		backend, err = sqlite.NewStore(os.Getenv("TYPEDOBJECT_SNAPSHOT_SQLITE_PATH"))
	case DriverPostgres:
		backend, err = postgres.NewStore(ctx, os.Getenv("TYPEDOBJECT_SNAPSHOT_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown snapshot driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s snapshot backend: %w", driver, err)
	}
	return backend, nil
}
