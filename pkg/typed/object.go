// Package typed wraps plain data in sealed objects whose properties keep the
// type established by a template. Every write goes through a guard that
// compares the incoming value's kind against the declared kind of the key;
// the set of keys never changes after construction.
//
// The guard is deliberately shallow. Objects are only told apart from arrays
// by whether they possess a length, and nested values are never inspected.
package typed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Object is a sealed, type-guarded record. Construct one with New, or embed
// it in a host struct and initialise it with Decorate. The zero value has no
// keys and accepts no writes.
//
// An Object is not safe for concurrent use.
type Object struct {
	name     string
	keys     []string
	kinds    map[string]Kind
	store    map[string]any
	observer Observer
	sealed   bool
}

// New builds a fresh typed object from the template.
func New(tpl Template, opts ...Option) (*Object, error) {
	return Decorate(new(Object), tpl, opts...)
}

// Decorate initialises target in place from the template and returns it. It
// supports host types that embed Object and forward their own instance.
// When a template value is a function, Decorate fails with a
// *DefinitionError and target is left untouched.
func Decorate(target *Object, tpl Template, opts ...Option) (*Object, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	if target.sealed {
		return nil, fmt.Errorf("%w: <%s> cannot be decorated again", ErrSealed, target.label())
	}
	cfg := options{name: defaultName}
	for _, opt := range opts {
		opt(&cfg)
	}

	fields := tpl.Fields()
	built := Object{
		name:     cfg.name,
		keys:     make([]string, 0, len(fields)),
		kinds:    make(map[string]Kind, len(fields)),
		store:    make(map[string]any, len(fields)),
		observer: cfg.observer,
	}
	for _, f := range fields {
		built.store[f.Key] = f.Value
		kind := Classify(f.Value)
		if kind == KindFunction {
			return nil, &DefinitionError{Object: cfg.name, Key: f.Key}
		}
		built.keys = append(built.keys, f.Key)
		built.kinds[f.Key] = kind
	}
	built.sealed = true

	*target = built
	return target, nil
}

// object lets host types that embed Object be recognised by HasLength.
func (o *Object) object() *Object { return o }

func (o *Object) label() string {
	if o == nil || o.name == "" {
		return defaultName
	}
	return o.name
}

// Name returns the label used in errors and events.
func (o *Object) Name() string {
	return o.label()
}

// Sealed reports whether the object has been constructed.
func (o *Object) Sealed() bool {
	return o != nil && o.sealed
}

// Has reports whether key is declared.
func (o *Object) Has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o.kinds[key]
	return ok
}

// Size returns the number of declared keys.
func (o *Object) Size() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the declared keys in enumeration order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return slices.Clone(o.keys)
}

// Kind returns the declared kind of key.
func (o *Object) Kind(key string) (Kind, bool) {
	if o == nil {
		return "", false
	}
	kind, ok := o.kinds[key]
	return kind, ok
}

// Get returns the current value of key.
func (o *Object) Get(key string) (any, bool) {
	if !o.Has(key) {
		return nil, false
	}
	return o.store[key], true
}

// Set validates value against the declared kind of key and stores it. A
// rejected write returns an *AssignmentError and leaves the previous value in
// place. Writing an undeclared key fails with ErrSealed.
func (o *Object) Set(key string, value any) error {
	if err := o.check(key, value); err != nil {
		return err
	}
	o.store[key] = value
	o.notify(key, value, nil)
	return nil
}

// Check runs the guard for key and value without storing anything.
func (o *Object) Check(key string, value any) error {
	if !o.Has(key) {
		return o.undeclared(key)
	}
	return o.guard(key, value)
}

// Assign writes every entry of values, or none of them. Entries are checked
// first (undeclared keys, then declared keys in enumeration order) and the
// first failure is returned before anything is stored.
func (o *Object) Assign(values map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if !o.Has(key) {
			return o.undeclared(key)
		}
	}
	pending := make([]string, 0, len(values))
	for _, key := range o.keys {
		value, ok := values[key]
		if !ok {
			continue
		}
		if err := o.check(key, value); err != nil {
			return err
		}
		pending = append(pending, key)
	}
	for _, key := range pending {
		o.store[key] = values[key]
		o.notify(key, values[key], nil)
	}
	return nil
}

// check is Check plus observer notification for rejected writes.
func (o *Object) check(key string, value any) error {
	if !o.Has(key) {
		return o.undeclared(key)
	}
	if err := o.guard(key, value); err != nil {
		o.notify(key, value, err)
		return err
	}
	return nil
}

func (o *Object) undeclared(key string) error {
	return fmt.Errorf("%w: can't add property <%s>.%s", ErrSealed, o.label(), key)
}

// guard applies the assignment policy. Object-tagged declarations only
// distinguish arrays from plain objects; primitive declarations compare tags.
func (o *Object) guard(key string, value any) error {
	declared := o.kinds[key]
	incoming := Tag(value)

	if declared.IsObject() {
		if incoming != KindObject {
			return o.mismatch(key, declared, incoming)
		}
		candidateArray := HasLength(value)
		switch {
		case declared == KindArray && !candidateArray:
			return o.mismatch(key, KindArray, KindObject)
		case declared == KindObject && candidateArray:
			return o.mismatch(key, KindObject, KindArray)
		}
		return nil
	}

	if incoming != declared {
		return o.mismatch(key, declared, incoming)
	}
	return nil
}

func (o *Object) mismatch(key string, expected, actual Kind) error {
	return &AssignmentError{Object: o.label(), Key: key, Expected: expected, Actual: actual}
}

func (o *Object) notify(key string, value any, err error) {
	if o.observer == nil {
		return
	}
	e := Event{
		Object:   o.label(),
		Key:      key,
		Declared: o.kinds[key],
		Expected: o.kinds[key],
		Incoming: Classify(value),
		Accepted: err == nil,
		Err:      err,
	}
	var assignErr *AssignmentError
	if errors.As(err, &assignErr) {
		e.Expected = assignErr.Expected
		e.Incoming = assignErr.Actual
	}
	o.observer.Observe(e)
}

// All iterates over the declared keys and their current values in
// enumeration order.
func (o *Object) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if o == nil {
			return
		}
		for _, key := range o.keys {
			if !yield(key, o.store[key]) {
				return
			}
		}
	}
}

// ToObject returns a shallow snapshot of the current values. Nested maps and
// slices are shared with the object, not copied.
func (o *Object) ToObject() map[string]any {
	out := make(map[string]any, o.Size())
	for key, value := range o.All() {
		out[key] = value
	}
	return out
}

// MarshalJSON encodes the projection with keys in enumeration order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(o.store[key])
		if err != nil {
			return nil, fmt.Errorf("typed: encode <%s>.%s: %w", o.label(), key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) String() string {
	var b strings.Builder
	b.WriteString("<" + o.label() + ">{")
	first := true
	for key, value := range o.All() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s: %v", key, value)
	}
	b.WriteString("}")
	return b.String()
}
