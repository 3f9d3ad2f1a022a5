package typed

import (
	"encoding/json"
	"math/big"
	"reflect"
)

// Kind is the classification label of a value. The string form is the label
// reported in guard errors.
type Kind string

// Known kinds. KindArray is a refinement of KindObject and is never produced
// by Tag.
const (
	KindUndefined Kind = "undefined"
	KindBoolean   Kind = "boolean"
	KindNumber    Kind = "number"
	KindBigInt    Kind = "bigint"
	KindString    Kind = "string"
	KindSymbol    Kind = "symbol"
	KindFunction  Kind = "function"
	KindObject    Kind = "object"
	KindArray     Kind = "array"
)

func (k Kind) String() string {
	return string(k)
}

// IsObject reports whether the kind carries the object tag.
func (k Kind) IsObject() bool {
	return k == KindObject || k == KindArray
}

// lengther is the capability that makes an object array-like.
type lengther interface {
	Len() int
}

// Tag returns the primitive type tag of v. Every non-primitive value, arrays
// included, is tagged KindObject.
func Tag(v any) Kind {
	if v == nil {
		return KindUndefined
	}
	switch v.(type) {
	case bool:
		return KindBoolean
	case string:
		return KindString
	case json.Number:
		return KindNumber
	case Symbol:
		return KindSymbol
	case *big.Int, big.Int:
		return KindBigInt
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return KindBoolean
	case reflect.String:
		return KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return KindNumber
	case reflect.Func:
		return KindFunction
	default:
		return KindObject
	}
}

// Classify returns Tag(v) refined by the array-like check: an object-tagged
// value that has a length is classified KindArray.
func Classify(v any) Kind {
	tag := Tag(v)
	if tag == KindObject && HasLength(v) {
		return KindArray
	}
	return tag
}

// HasLength reports whether v possesses a length. Slices and arrays always
// do, as do values with a Len() int method, string-keyed maps holding a
// "length" entry and typed objects declaring a "length" key. Nothing stronger
// than this capability check is used to decide array-ness.
func HasLength(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return false
	}
	switch typed := v.(type) {
	case interface{ object() *Object }:
		return typed.object().Has("length")
	case map[string]any:
		_, ok := typed["length"]
		return ok
	case lengther:
		return true
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return false
		}
		return rv.MapIndex(reflect.ValueOf("length").Convert(rv.Type().Key())).IsValid()
	default:
		return false
	}
}
