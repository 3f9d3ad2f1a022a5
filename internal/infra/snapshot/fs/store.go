// Package fs implements a filesystem snapshot backend.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"typedobject/internal/snapshot/core"
)

const (
	dataSuffix = ".json"
	metaSuffix = ".meta"
)

// Store implements core.Backend using the local filesystem. Each snapshot is
// a data file plus a `.meta` sidecar holding content type, metadata and etag.
// Replacement is atomic per file via rename; concurrent writers of the same
// name race on the sidecar.
type Store struct {
	root string
}

// New returns a filesystem-backed snapshot store rooted at path, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./snapshots"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the directory snapshots are written under.
func (s *Store) Root() string { return s.root }

// sanitizeName ensures name doesn't escape root and forbids path traversal and absolute paths.
func sanitizeName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty name", core.ErrInvalidName)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: name contains '..'", core.ErrInvalidName)
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: absolute name", core.ErrInvalidName)
	}
	if strings.HasSuffix(name, metaSuffix) {
		return "", fmt.Errorf("%w: reserved suffix %s", core.ErrInvalidName, metaSuffix)
	}
	clean := filepath.ToSlash(filepath.Clean(name))
	if clean == "." {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidName, name)
	}
	return clean, nil
}

func (s *Store) pathFor(name string) (dataPath, metaPath string, err error) {
	n, err := sanitizeName(name)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(n)) + dataSuffix
	metaPath = dataPath + metaSuffix
	return
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Put writes the snapshot atomically, replacing any previous version.
func (s *Store) Put(_ context.Context, name string, data []byte, opts core.PutOptions) (core.Info, error) {
	dataPath, metaPath, err := s.pathFor(name)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return core.Info{}, err
	}
	if err := writeAtomic(dataPath, data); err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(data)
	mf := metaFile{
		ContentType: opts.ContentType,
		Metadata:    maps.Clone(opts.Metadata),
		ETag:        hex.EncodeToString(sum[:]),
		Size:        int64(len(data)),
		UpdatedAt:   time.Now().UTC(),
	}
	b, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := writeAtomic(metaPath, b); err != nil {
		return core.Info{}, err
	}
	return mf.info(name), nil
}

// Get returns the snapshot contents and metadata.
func (s *Store) Get(_ context.Context, name string) (core.Info, []byte, error) {
	dataPath, metaPath, err := s.pathFor(name)
	if err != nil {
		return core.Info{}, nil, err
	}
	data, err := os.ReadFile(dataPath) //nolint:gosec // path sanitised by pathFor
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	mf, err := readMeta(metaPath)
	if err != nil {
		return core.Info{}, nil, err
	}
	return mf.info(name), data, nil
}

// Head returns snapshot metadata only.
func (s *Store) Head(_ context.Context, name string) (core.Info, error) {
	_, metaPath, err := s.pathFor(name)
	if err != nil {
		return core.Info{}, err
	}
	mf, err := readMeta(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}
	if err != nil {
		return core.Info{}, err
	}
	return mf.info(name), nil
}

// Delete removes the snapshot and its sidecar.
func (s *Store) Delete(_ context.Context, name string) (bool, error) {
	dataPath, metaPath, err := s.pathFor(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root collecting sidecars whose snapshot name has prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, dataSuffix+metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, dataSuffix+metaSuffix))
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		mf, err := readMeta(path)
		if err != nil {
			return err
		}
		infos = append(infos, mf.info(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (mf metaFile) info(name string) core.Info {
	return core.Info{
		Name:         name,
		Size:         mf.Size,
		ContentType:  mf.ContentType,
		ETag:         mf.ETag,
		Metadata:     maps.Clone(mf.Metadata),
		LastModified: mf.UpdatedAt,
	}
}

// writeAtomic streams data to a temp file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readMeta(path string) (metaFile, error) {
	b, err := os.ReadFile(path) //nolint:gosec // path derived from sanitised name
	if err != nil {
		return metaFile{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return metaFile{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return mf, nil
}
