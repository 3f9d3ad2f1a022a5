// Package memory implements an in-memory snapshot backend for tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"typedobject/internal/snapshot/core"
)

type entry struct {
	info core.Info
	data []byte
}

// Store implements core.Backend backed by process memory.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New returns an empty in-memory snapshot store.
func New() *Store {
	return &Store{entries: make(map[string]entry), now: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores or replaces the snapshot under name.
func (s *Store) Put(_ context.Context, name string, data []byte, opts core.PutOptions) (core.Info, error) {
	if strings.TrimSpace(name) == "" {
		return core.Info{}, fmt.Errorf("%w: empty name", core.ErrInvalidName)
	}
	sum := sha256.Sum256(data)
	info := core.Info{
		Name:         name,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     maps.Clone(opts.Metadata),
		LastModified: s.now(),
	}
	s.mu.Lock()
	s.entries[name] = entry{info: info, data: append([]byte(nil), data...)}
	s.mu.Unlock()
	return cloneInfo(info), nil
}

// Get returns a copy of the stored snapshot.
func (s *Store) Get(_ context.Context, name string) (core.Info, []byte, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}
	return cloneInfo(e.info), append([]byte(nil), e.data...), nil
}

// Head returns snapshot metadata only.
func (s *Store) Head(_ context.Context, name string) (core.Info, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}
	return cloneInfo(e.info), nil
}

// Delete removes the snapshot returning true if it existed.
func (s *Store) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	if ok {
		delete(s.entries, name)
	}
	return ok, nil
}

// List returns all snapshots matching prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.entries))
	for name, e := range s.entries {
		if strings.HasPrefix(name, prefix) {
			out = append(out, cloneInfo(e.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneInfo(in core.Info) core.Info {
	in.Metadata = maps.Clone(in.Metadata)
	return in
}
