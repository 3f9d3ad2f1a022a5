package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"typedobject/internal/snapshot/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreLifecycle(t *testing.T) { //nolint:cyclop
	ctx := context.Background()
	store := newTestStore(t)
	if store.Driver() != core.DriverSQLite {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	first, err := store.Put(ctx, "users/ada", []byte(`{"name":"ada"}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"keys": "name"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := store.Put(ctx, "users/ada", []byte(`{"name":"bob"}`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if first.ETag == second.ETag {
		t.Fatalf("expected etag to change on replace")
	}
	info, data, err := store.Get(ctx, "users/ada")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"name":"bob"}` || info.ETag != second.ETag || info.Metadata != nil || info.Size != 14 {
		t.Fatalf("unexpected get %+v %s", info, data)
	}
	if _, err := store.Put(ctx, "other", []byte(`{}`), core.PutOptions{Metadata: map[string]string{"k": "v"}}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	head, err := store.Head(ctx, "other")
	if err != nil || head.Metadata["k"] != "v" {
		t.Fatalf("unexpected head %+v err=%v", head, err)
	}
	list, err := store.List(ctx, "users/")
	if err != nil || len(list) != 1 || list[0].Name != "users/ada" {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	ok, err := store.Delete(ctx, "users/ada")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.Delete(ctx, "users/ada")
	if err != nil || ok {
		t.Fatalf("expected missing delete to be false, ok=%v err=%v", ok, err)
	}
	if _, _, err := store.Get(ctx, "users/ada"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.Put(ctx, "persist", []byte(`{"n":1}`), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
	_, data, err := reopened.Get(ctx, "persist")
	if err != nil || string(data) != `{"n":1}` {
		t.Fatalf("unexpected reload %s err=%v", data, err)
	}
	var table string
	if err := reopened.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", "snapshots").Scan(&table); err != nil {
		t.Fatalf("lookup snapshots table: %v", err)
	}
}

func TestSQLiteStoreRejectsEmptyName(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put(context.Background(), "", nil, core.PutOptions{}); !errors.Is(err, core.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestSQLiteStoreListFiltersByExactPrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for name, body := range map[string]string{
		"a_b/1":   `{"n":1}`,
		"axb/2":   `{}`,
		"A_B/3":   `{}`,
		"a%b/4":   `{}`,
		"a_b/10":  `{"n":10}`,
		"another": `{}`,
	} {
		if _, err := store.Put(ctx, name, []byte(body), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
	list, err := store.List(ctx, "a_b/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a_b/1" || list[1].Name != "a_b/10" {
		t.Fatalf("expected literal, case-sensitive prefix match, got %+v", list)
	}
	if list[0].Size != 7 || list[1].Size != 8 || list[0].ETag == "" || list[0].LastModified.IsZero() {
		t.Fatalf("unexpected listed info %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 6 {
		t.Fatalf("expected every snapshot for empty prefix, got %d err=%v", len(all), err)
	}
}

func TestSQLiteStoreAcceptsEmptyPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.Put(ctx, "empty", nil, core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := store.List(ctx, "empty")
	if err != nil || len(list) != 1 || list[0].Size != 0 {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
}
