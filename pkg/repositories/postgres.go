package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/database"
)

// Codec converts a record to and from its JSONB document.
type Codec[R Record] struct {
	Encode func(R) ([]byte, error)
	Decode func([]byte) (R, error)
}

// DocumentStore keeps one JSONB document per row. Every operation is a single
// statement, so a partially written record is never visible.
type DocumentStore[R Record] struct {
	db    *database.DB
	table string
	codec Codec[R]
}

// NewDocumentStore creates a store over table, which must have the layout
// created by migrations/001_records.up.sql.
func NewDocumentStore[R Record](db *database.DB, table string, codec Codec[R]) *DocumentStore[R] {
	return &DocumentStore[R]{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		codec: codec,
	}
}

func (s *DocumentStore[R]) Insert(ctx context.Context, rec R) (uuid.UUID, error) {
	id := rec.RecordID()
	if id == uuid.Nil {
		id = uuid.New()
		rec.SetRecordID(id)
	}

	doc, err := s.codec.Encode(rec)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode record: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, s.table)
	if _, err := s.db.Exec(ctx, query, id, string(doc)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, apperrors.ErrConflict
		}
		return uuid.Nil, fmt.Errorf("failed to insert into %s: %w", s.table, err)
	}
	return id, nil
}

func (s *DocumentStore[R]) Find(ctx context.Context, id uuid.UUID) (R, error) {
	var zero R

	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table)
	var doc []byte
	err := s.db.QueryRow(ctx, query, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, apperrors.ErrNotFound
		}
		return zero, fmt.Errorf("failed to load from %s: %w", s.table, err)
	}
	return s.decode(id, doc)
}

func (s *DocumentStore[R]) FindAllBy(ctx context.Context, pred Predicate) ([]R, error) {
	query := fmt.Sprintf(`SELECT id, doc FROM %s WHERE doc ->> $1 = $2 ORDER BY seq`, s.table)
	rows, err := s.db.Query(ctx, query, pred.Field, pred.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	out := make([]R, 0)
	for rows.Next() {
		var id uuid.UUID
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.table, err)
		}
		rec, err := s.decode(id, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", s.table, err)
	}
	return out, nil
}

func (s *DocumentStore[R]) Replace(ctx context.Context, id uuid.UUID, rec R) (R, error) {
	var zero R
	rec.SetRecordID(id)

	doc, err := s.codec.Encode(rec)
	if err != nil {
		return zero, fmt.Errorf("failed to encode record: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET doc = $2, updated_at = NOW() WHERE id = $1`, s.table)
	tag, err := s.db.Exec(ctx, query, id, string(doc))
	if err != nil {
		return zero, fmt.Errorf("failed to update %s: %w", s.table, err)
	}
	if tag.RowsAffected() == 0 {
		return zero, apperrors.ErrNotFound
	}
	return s.decode(id, doc)
}

func (s *DocumentStore[R]) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", s.table, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *DocumentStore[R]) decode(id uuid.UUID, doc []byte) (R, error) {
	rec, err := s.codec.Decode(doc)
	if err != nil {
		var zero R
		return zero, fmt.Errorf("failed to decode %s record %s: %w", s.table, id, err)
	}
	rec.SetRecordID(id)
	return rec, nil
}

var _ Store[Record] = (*DocumentStore[Record])(nil)
