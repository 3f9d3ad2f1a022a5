// Package postgres implements a snapshot backend on a Postgres table through
// the pgx database/sql driver.
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"typedobject/internal/snapshot/core"
)

var _ core.Backend = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/typedobject?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists snapshots as rows of the snapshots table.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN)
// and ensures the snapshots table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSnapshotTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSnapshotTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata JSONB NOT NULL DEFAULT '{}',
		etag TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure snapshots table: %w", err)
	}
	return nil
}

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// Put upserts the snapshot row.
func (s *Store) Put(ctx context.Context, name string, data []byte, opts core.PutOptions) (core.Info, error) {
	if strings.TrimSpace(name) == "" {
		return core.Info{}, fmt.Errorf("%w: empty name", core.ErrInvalidName)
	}
	if data == nil {
		data = []byte{}
	}
	md, err := json.Marshal(opts.Metadata)
	if err != nil {
		return core.Info{}, fmt.Errorf("encode metadata: %w", err)
	}
	sum := sha256.Sum256(data)
	etag := hex.EncodeToString(sum[:])
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	const upsert = `INSERT INTO snapshots (name, payload, content_type, metadata, etag, updated_at) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, content_type = EXCLUDED.content_type,
		metadata = EXCLUDED.metadata, etag = EXCLUDED.etag, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, upsert, name, data, opts.ContentType, string(md), etag, now); err != nil {
		return core.Info{}, fmt.Errorf("upsert %s: %w", name, err)
	}
	return core.Info{
		Name:         name,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         etag,
		Metadata:     decodeMetadata(md),
		LastModified: now,
	}, nil
}

// Get returns the stored payload and metadata.
func (s *Store) Get(ctx context.Context, name string) (core.Info, []byte, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx, `SELECT payload, `+infoColumns+` FROM snapshots WHERE name = $1`, name)
	info, err := scanInfo(row, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Info{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("select %s: %w", name, err)
	}
	info.Size = int64(len(data))
	return info, data, nil
}

// Head returns snapshot metadata only.
func (s *Store) Head(ctx context.Context, name string) (core.Info, error) {
	info, _, err := s.Get(ctx, name)
	return info, err
}

// Delete removes the snapshot row.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns snapshots whose name has prefix, ascending by name. Payloads
// are not read; sizes come from the database.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT octet_length(payload), `+infoColumns+` FROM snapshots
		WHERE starts_with(name, $1) ORDER BY name`, prefix)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		var size int64
		info, err := scanInfo(rows, &size)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.Size = size
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return infos, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

// infoColumns follows the leading payload or size column in every select.
const infoColumns = "name, content_type, metadata, etag, updated_at"

func scanInfo(row scanner, lead any) (core.Info, error) {
	var (
		info     core.Info
		metadata []byte
	)
	if err := row.Scan(lead, &info.Name, &info.ContentType, &metadata, &info.ETag, &info.LastModified); err != nil {
		return core.Info{}, err
	}
	info.Metadata = decodeMetadata(metadata)
	return info, nil
}

func decodeMetadata(raw []byte) map[string]string {
	var md map[string]string
	if err := json.Unmarshal(raw, &md); err != nil || len(md) == 0 {
		return nil
	}
	return md
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
