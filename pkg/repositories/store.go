// Package repositories stores connection and dataset records. Every
// implementation replaces whole records atomically and never hands out
// references to its internal state.
package repositories

import (
	"context"

	"github.com/google/uuid"
)

// Record is implemented by every stored type.
type Record interface {
	RecordID() uuid.UUID
	SetRecordID(id uuid.UUID)
	// Attribute returns the string form of an indexed field, "" if unknown.
	Attribute(field string) string
}

// Predicate matches records whose indexed Field equals Value.
type Predicate struct {
	Field string
	Value string
}

// By builds an equality predicate.
func By(field, value string) Predicate {
	return Predicate{Field: field, Value: value}
}

// Match reports whether r satisfies the predicate.
func (p Predicate) Match(r Record) bool {
	return r.Attribute(p.Field) == p.Value
}

// Store is the persistence contract the services depend on.
type Store[R Record] interface {
	// Insert stores rec and returns its id. A nil id is replaced with a new one.
	// Returns apperrors.ErrConflict if the id is already taken.
	Insert(ctx context.Context, rec R) (uuid.UUID, error)

	// Find returns the record or apperrors.ErrNotFound.
	Find(ctx context.Context, id uuid.UUID) (R, error)

	// FindAllBy returns matching records in insertion order.
	FindAllBy(ctx context.Context, pred Predicate) ([]R, error)

	// Replace overwrites the record with the given id. Returns apperrors.ErrNotFound
	// if it does not exist.
	Replace(ctx context.Context, id uuid.UUID, rec R) (R, error)

	// Remove deletes the record, reporting whether it existed.
	Remove(ctx context.Context, id uuid.UUID) (bool, error)
}
