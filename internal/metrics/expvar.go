// Package metrics provides typed.Observer implementations that export
// assignment outcomes through expvar, Prometheus and JSON-lines audit logs.
package metrics

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"typedobject/pkg/typed"
)

const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
)

var expvarSeq uint64

// ExpvarRecorder publishes accepted/rejected counters per object property via
// expvar. Properties are keyed as "Object.key".
type ExpvarRecorder struct {
	name    string
	mu      sync.Mutex
	results map[string]map[string]int64
}

// ExpvarSnapshot captures a read-only view of the recorded counters.
type ExpvarSnapshot struct {
	Results    map[string]map[string]int64 `json:"results_total"`
	RecordedAt time.Time                   `json:"recorded_at"`
}

// NewExpvarRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is generated.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("typedobject_assignments_%d", id)
	}
	rec := &ExpvarRecorder{
		name:    name,
		results: make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the counters.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make(map[string]map[string]int64, len(r.results))
	for prop, counts := range r.results {
		cpy := make(map[string]int64, len(counts))
		for status, n := range counts {
			cpy[status] = n
		}
		results[prop] = cpy
	}
	return ExpvarSnapshot{Results: results, RecordedAt: time.Now().UTC()}
}

// Observe implements typed.Observer.
func (r *ExpvarRecorder) Observe(e typed.Event) {
	prop := e.Object + "." + e.Key
	r.mu.Lock()
	if _, ok := r.results[prop]; !ok {
		r.results[prop] = make(map[string]int64, 2)
	}
	r.results[prop][result(e)]++
	r.mu.Unlock()
}

func result(e typed.Event) string {
	if e.Accepted {
		return resultAccepted
	}
	return resultRejected
}
