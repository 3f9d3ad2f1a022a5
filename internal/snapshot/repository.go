package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"typedobject/pkg/typed"
)

// ContentType is the media type snapshots are stored with.
const ContentType = "application/json"

// Metadata keys written alongside each snapshot.
const (
	MetaKeys   = "keys"
	MetaObject = "object"
)

// ErrNilObject is returned when Save or Load is handed no object.
var ErrNilObject = errors.New("snapshot: nil object")

// Repository saves typed objects to a Backend and restores them through the
// object's guard, so a stored document that no longer fits the template is
// rejected on load.
type Repository struct {
	backend Backend
}

// NewRepository wraps backend.
func NewRepository(backend Backend) *Repository {
	return &Repository{backend: backend}
}

// Backend returns the underlying storage backend.
func (r *Repository) Backend() Backend { return r.backend }

// Save stores the JSON projection of obj under name.
func (r *Repository) Save(ctx context.Context, name string, obj *typed.Object) (Info, error) {
	if err := validName(name); err != nil {
		return Info{}, err
	}
	if obj == nil {
		return Info{}, ErrNilObject
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return Info{}, fmt.Errorf("encode %s: %w", name, err)
	}
	info, err := r.backend.Put(ctx, name, data, PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			MetaKeys:   strings.Join(obj.Keys(), ","),
			MetaObject: obj.Name(),
		},
	})
	if err != nil {
		return Info{}, fmt.Errorf("save %s: %w", name, err)
	}
	return info, nil
}

// Load reads the snapshot stored under name and assigns its fields to obj.
// Either every field is applied or obj is left unchanged.
func (r *Repository) Load(ctx context.Context, name string, obj *typed.Object) (Info, error) {
	if err := validName(name); err != nil {
		return Info{}, err
	}
	if obj == nil {
		return Info{}, ErrNilObject
	}
	info, data, err := r.backend.Get(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("load %s: %w", name, err)
	}
	values, err := decodeDocument(data)
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := obj.Assign(values); err != nil {
		return Info{}, fmt.Errorf("restore %s: %w", name, err)
	}
	return info, nil
}

// Delete removes the snapshot stored under name.
func (r *Repository) Delete(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	return r.backend.Delete(ctx, name)
}

// List returns snapshots whose name has prefix, ascending by name.
func (r *Repository) List(ctx context.Context, prefix string) ([]Info, error) {
	return r.backend.List(ctx, prefix)
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	return nil
}

// decodeDocument decodes a JSON object, keeping numbers as json.Number.
func decodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, errors.New("document is not a JSON object")
	}
	return values, nil
}
