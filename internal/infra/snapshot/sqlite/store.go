// Package sqlite implements a snapshot backend on a single SQLite file.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"typedobject/internal/snapshot/core"
)

const defaultPath = "typedobject.db"

// Store persists snapshots as rows of the snapshots table, one row per name.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		etag TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

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
	if _, err := s.db.ExecContext(ctx, `INSERT INTO snapshots(name,payload,content_type,metadata,etag,updated_at) VALUES(?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET payload=excluded.payload, content_type=excluded.content_type, metadata=excluded.metadata, etag=excluded.etag, updated_at=excluded.updated_at`,
		name, data, opts.ContentType, string(md), etag, now.Format(time.RFC3339Nano)); err != nil {
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
	row := s.db.QueryRowContext(ctx, `SELECT payload, `+infoColumns+` FROM snapshots WHERE name = ?`, name)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
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
	rows, err := s.db.QueryContext(ctx, `SELECT length(payload), `+infoColumns+` FROM snapshots
		WHERE substr(name, 1, length(?)) = ? ORDER BY name`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		var size int64
		info, err := scanInfo(rows, &size)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
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

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

// infoColumns follows the leading payload or size column in every select.
const infoColumns = "name, content_type, metadata, etag, updated_at"

func scanInfo(row scanner, lead any) (core.Info, error) {
	var (
		info      core.Info
		metadata  string
		updatedAt string
	)
	if err := row.Scan(lead, &info.Name, &info.ContentType, &metadata, &info.ETag, &updatedAt); err != nil {
		return core.Info{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return core.Info{}, fmt.Errorf("parse updated_at: %w", err)
	}
	info.Metadata = decodeMetadata([]byte(metadata))
	info.LastModified = ts
	return info, nil
}

func decodeMetadata(raw []byte) map[string]string {
	var md map[string]string
	if err := json.Unmarshal(raw, &md); err != nil || len(md) == 0 {
		return nil
	}
	return md
}
