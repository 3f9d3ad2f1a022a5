package metrics

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"typedobject/pkg/typed"
)

// AuditEntry is one serialized guarded write.
type AuditEntry struct {
	Object   string    `json:"object"`
	Key      string    `json:"key"`
	Declared string    `json:"declared"`
	Expected string    `json:"expected"`
	Incoming string    `json:"incoming"`
	Result   string    `json:"result"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// AuditLog writes guarded writes to a writer as JSON lines and retains them
// for inspection.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	enc     *json.Encoder
	now     func() time.Time
}

// NewAuditLog constructs an audit log writing to w. A nil writer only retains
// entries.
func NewAuditLog(w io.Writer) *AuditLog {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &AuditLog{enc: enc, now: func() time.Time { return time.Now().UTC() }}
}

// Entries returns a copy of all recorded entries.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Observe implements typed.Observer.
func (l *AuditLog) Observe(e typed.Event) {
	entry := AuditEntry{
		Object:   e.Object,
		Key:      e.Key,
		Declared: e.Declared.String(),
		Expected: e.Expected.String(),
		Incoming: e.Incoming.String(),
		Result:   result(e),
		At:       l.now(),
	}
	if e.Err != nil {
		entry.Error = e.Err.Error()
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if l.enc != nil {
		_ = l.enc.Encode(entry)
	}
	l.mu.Unlock()
}
