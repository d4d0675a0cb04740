// Package model defines the entity types shared by the local cache, the remote
// store backends, the sync engine, and the booking coordinator.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Meta carries the identity and timestamps every entity has. It is excluded
// from the JSON payload; stores keep it in dedicated columns.
type Meta struct {
	ID        string `json:"-"`
	CreatedAt int64  `json:"-"` // milliseconds since epoch
	UpdatedAt int64  `json:"-"` // milliseconds since epoch
}

// GetMeta returns the entity's identity and timestamps. Promoted to every
// entity type that embeds Meta.
func (m Meta) GetMeta() Meta { return m }

// Entity is implemented by every domain record the sync engine can cache.
type Entity[E any] interface {
	GetMeta() Meta
	WithMeta(Meta) E
}

// Document is the store-level representation of an entity: an id, a payload
// of domain fields, and millisecond timestamps.
type Document struct {
	ID        string
	Fields    map[string]any
	CreatedAt int64
	UpdatedAt int64
}

// Meta field names. They address the document timestamps in queries and are
// never stored inside Fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Clone returns a deep-enough copy of d: the Fields map is copied so callers
// can mutate it without touching the original.
func (d Document) Clone() Document {
	d.Fields = maps.Clone(d.Fields)
	return d
}

// Field returns the payload value for name, resolving the meta field names to
// the document's id and timestamps.
func (d Document) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return d.ID, true
	case FieldCreatedAt:
		return d.CreatedAt, true
	case FieldUpdatedAt:
		return d.UpdatedAt, true
	}
	v, ok := d.Fields[name]
	return v, ok
}

// Merge overlays fields onto a copy of d. Meta keys are ignored; identity and
// timestamps only change through the repository.
func (d Document) Merge(fields map[string]any) Document {
	out := d.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out.Fields[k] = v
	}
	return out
}

// MarshalFields encodes the payload as a JSON object.
func (d Document) MarshalFields() ([]byte, error) {
	if d.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Fields)
}

// UnmarshalFields decodes a JSON object into a payload map. Numbers are kept
// as json.Number so integer fields survive the round trip exactly.
func UnmarshalFields(raw []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if len(raw) == 0 {
		return fields, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decoding document fields: %w", err)
	}
	return fields, nil
}

// Encode converts a typed entity into a Document.
func Encode[E Entity[E]](e E) (Document, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return Document{}, fmt.Errorf("encoding entity: %w", err)
	}
	fields, err := UnmarshalFields(raw)
	if err != nil {
		return Document{}, err
	}
	m := e.GetMeta()
	return Document{ID: m.ID, Fields: fields, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}, nil
}

// Decode converts a Document back into a typed entity.
func Decode[E Entity[E]](d Document) (E, error) {
	var e E
	raw, err := d.MarshalFields()
	if err != nil {
		return e, fmt.Errorf("encoding document %q: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, fmt.Errorf("decoding document %q: %w", d.ID, err)
	}
	return e.WithMeta(Meta{ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}), nil
}

// Millis converts t to milliseconds since epoch; the zero time maps to 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
