package repositories

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
)

// MemoryStore is an in-process Store. Records are deep-copied on the way in
// and on the way out.
type MemoryStore[R Record] struct {
	mu      sync.RWMutex
	records map[uuid.UUID]R
	order   []uuid.UUID
	clone   func(R) R
}

// NewMemoryStore creates an empty store that copies records with clone.
func NewMemoryStore[R Record](clone func(R) R) *MemoryStore[R] {
	return &MemoryStore[R]{
		records: make(map[uuid.UUID]R),
		clone:   clone,
	}
}

func (s *MemoryStore[R]) Insert(ctx context.Context, rec R) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	stored := s.clone(rec)
	id := stored.RecordID()
	if id == uuid.Nil {
		id = uuid.New()
		stored.SetRecordID(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return uuid.Nil, apperrors.ErrConflict
	}
	s.records[id] = stored
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryStore[R]) Find(ctx context.Context, id uuid.UUID) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return zero, apperrors.ErrNotFound
	}
	return s.clone(rec), nil
}

func (s *MemoryStore[R]) FindAllBy(ctx context.Context, pred Predicate) ([]R, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]R, 0)
	for _, id := range s.order {
		if rec := s.records[id]; pred.Match(rec) {
			out = append(out, s.clone(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore[R]) Replace(ctx context.Context, id uuid.UUID, rec R) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	stored := s.clone(rec)
	stored.SetRecordID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return zero, apperrors.ErrNotFound
	}
	s.records[id] = stored
	return s.clone(stored), nil
}

func (s *MemoryStore[R]) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	s.order = slices.DeleteFunc(s.order, func(other uuid.UUID) bool { return other == id })
	return true, nil
}

// Len returns the number of stored records.
func (s *MemoryStore[R]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ Store[Record] = (*MemoryStore[Record])(nil)
