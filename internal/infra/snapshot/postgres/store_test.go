package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"typedobject/internal/infra/snapshot/postgres/testutil"
	"typedobject/internal/snapshot/core"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresTable(t *testing.T) {
	store, conn := newStubStore(t)
	if store.Driver() != core.DriverPostgres || store.DB() == nil {
		t.Fatalf("unexpected store %+v", store)
	}
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS snapshots") {
		t.Fatalf("expected snapshots DDL, got %v", conn.Execs)
	}
}

func TestNewStoreUsesDefaultDSN(t *testing.T) {
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		db, _ := testutil.NewStubDB()
		return db, nil
	})
	defer restore()
	if _, err := NewStore(context.Background(), ""); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if gotDriver != "pgx" || gotDSN != defaultDSN {
		t.Fatalf("unexpected open args %q %q", gotDriver, gotDSN)
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("boom") })
	if _, err := NewStore(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.FailExec = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ensure snapshots table") {
		t.Fatalf("expected ddl error, got %v", err)
	}
}

func TestStoreLifecycle(t *testing.T) { //nolint:cyclop
	ctx := context.Background()
	store, conn := newStubStore(t)
	first, err := store.Put(ctx, "users/ada", []byte(`{"name":"ada"}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"keys": "name"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "users/ada", []byte(`{"name":"bob"}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"keys": "name"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := store.Put(ctx, "archive/1", []byte(`{}`), core.PutOptions{}); err != nil {
		t.Fatalf("put archive: %v", err)
	}
	if rows := conn.Tables["snapshots"]; len(rows) != 2 {
		t.Fatalf("expected upsert to keep two rows, got %d", len(rows))
	}
	info, data, err := store.Get(ctx, "users/ada")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"name":"bob"}` || info.ETag == first.ETag || info.Metadata["keys"] != "name" || info.LastModified.IsZero() {
		t.Fatalf("unexpected get %+v %s", info, data)
	}
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Name != "archive/1" || all[1].Name != "users/ada" {
		t.Fatalf("unexpected list %+v err=%v", all, err)
	}
	users, err := store.List(ctx, "users/")
	if err != nil || len(users) != 1 {
		t.Fatalf("unexpected prefixed list %+v err=%v", users, err)
	}
	ok, err := store.Delete(ctx, "users/ada")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.Delete(ctx, "users/ada")
	if err != nil || ok {
		t.Fatalf("expected missing delete to be false, ok=%v err=%v", ok, err)
	}
	if _, err := store.Put(ctx, " ", nil, core.PutOptions{}); !errors.Is(err, core.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestStoreListPropagatesRowErrors(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	if _, err := store.Put(ctx, "a", []byte(`{}`), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	conn.RowsErr = errors.New("cursor lost")
	if _, err := store.List(ctx, ""); err == nil || !strings.Contains(err.Error(), "cursor lost") {
		t.Fatalf("expected rows error, got %v", err)
	}
}

func TestStoreListFiltersInQuery(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	for name, body := range map[string]string{
		"a_b/1":  `{"n":1}`,
		"axb/2":  `{}`,
		"a_b/10": `{"n":10}`,
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
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Size != 7 || list[1].Size != 8 || list[0].ETag == "" {
		t.Fatalf("expected sizes from octet_length, got %+v", list)
	}
	if _, err := store.Put(ctx, "empty", nil, core.PutOptions{}); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	for _, row := range conn.Tables["snapshots"] {
		if row["name"] == "empty" && row["payload"] == nil {
			t.Fatalf("expected empty payload to be stored as zero bytes")
		}
	}
}
