// Package testutil provides a stub database/sql driver for postgres snapshot tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// StubConn records statements and keeps rows per table. It understands the
// narrow SQL dialect the snapshot store emits: single-table INSERT (with an
// optional ON CONFLICT upsert keyed on the first column), DELETE and SELECT
// with at most one predicate (col = $1 or starts_with(col, $1)) and an
// optional ORDER BY. Selected columns may be wrapped in octet_length().
type StubConn struct {
	mu       sync.Mutex
	Execs    []string
	Tables   map[string][]map[string]any
	FailPing bool
	FailExec bool
	RowsErr  error
}

var stubSeq atomic.Int64

// NewStubDB registers a uniquely named driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubsnapshotpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("transactions not supported") }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		return c.insert(query, args)
	case strings.HasPrefix(upper, "DELETE FROM"):
		return c.delete(query, args)
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if strings.Contains(strings.ToUpper(query), "ON CONFLICT") {
		primary := cols[0]
		for i, existing := range c.Tables[table] {
			if existing[primary] == row[primary] {
				c.Tables[table][i] = row
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) delete(query string, args []driver.NamedValue) (driver.Result, error) {
	table, col, err := parseDelete(query)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("missing args for delete %s", table)
	}
	var (
		kept    []map[string]any
		removed int64
	)
	for _, row := range c.Tables[table] {
		if row[col] == args[0].Value {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return driver.RowsAffected(removed), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	var matched []map[string]any
	for _, row := range c.Tables[sel.table] {
		if sel.where != "" {
			if len(args) == 0 {
				return nil, fmt.Errorf("missing args for select %s", sel.table)
			}
			if !sel.match(row, args[0].Value) {
				continue
			}
		}
		matched = append(matched, row)
	}
	if sel.order != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return fmt.Sprint(matched[i][sel.order]) < fmt.Sprint(matched[j][sel.order])
		})
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(sel.cols))
		for i, col := range sel.cols {
			vals[i] = columnValue(row, col)
		}
		values = append(values, vals)
	}
	return &stubRows{cols: sel.cols, rows: values, err: c.RowsErr}, nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

func parseDelete(query string) (string, string, error) {
	rest := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToLower(rest), "delete from ") {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	rest = rest[len("delete from "):]
	table, where, ok := cutFold(rest, " where ")
	if !ok {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	col, _, ok := strings.Cut(where, "=")
	if !ok {
		return "", "", fmt.Errorf("cannot parse delete predicate: %s", query)
	}
	return strings.ToLower(strings.TrimSpace(table)), strings.ToLower(strings.TrimSpace(col)), nil
}

type selectQuery struct {
	table  string
	cols   []string
	where  string
	prefix bool
	order  string
}

func (q selectQuery) match(row map[string]any, arg any) bool {
	if !q.prefix {
		return row[q.where] == arg
	}
	want, ok := arg.(string)
	return ok && strings.HasPrefix(fmt.Sprint(row[q.where]), want)
}

// columnValue resolves a selected column, evaluating octet_length(col).
func columnValue(row map[string]any, col string) driver.Value {
	inner, ok := strings.CutPrefix(col, "octet_length(")
	if !ok {
		return row[col]
	}
	switch v := row[strings.TrimSuffix(inner, ")")].(type) {
	case []byte:
		return int64(len(v))
	case string:
		return int64(len(v))
	default:
		return nil
	}
}

func parseSelect(query string) (selectQuery, error) {
	trimmed := strings.Join(strings.Fields(query), " ")
	if !strings.HasPrefix(strings.ToLower(trimmed), "select ") {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	cols, rest, ok := cutFold(trimmed[len("select "):], " from ")
	if !ok {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	rest, order, _ := cutFold(rest, " order by ")
	table, where, hasWhere := cutFold(rest, " where ")
	fields := strings.Fields(table)
	if len(fields) == 0 {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	sel := selectQuery{table: strings.ToLower(fields[0]), cols: splitColumns(cols)}
	if hasWhere {
		where = strings.TrimSpace(where)
		if args, ok := cutPrefixFold(where, "starts_with("); ok {
			col, _, ok := strings.Cut(args, ",")
			if !ok {
				return selectQuery{}, fmt.Errorf("cannot parse select predicate: %s", query)
			}
			sel.where, sel.prefix = strings.ToLower(strings.TrimSpace(col)), true
		} else {
			col, _, ok := strings.Cut(where, "=")
			if !ok {
				return selectQuery{}, fmt.Errorf("cannot parse select predicate: %s", query)
			}
			sel.where = strings.ToLower(strings.TrimSpace(col))
		}
	}
	if order = strings.TrimSpace(order); order != "" {
		sel.order = strings.ToLower(strings.Fields(order)[0])
	}
	return sel, nil
}

// cutFold is strings.Cut with a case-insensitive separator.
func cutFold(s, sep string) (before, after string, found bool) {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(sep))
	if idx == -1 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
