package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	"github.com/ekaya-inc/ekaya-charts/pkg/repositories"
)

// DatasetService manages datasets and runs the execution pipeline.
type DatasetService interface {
	// Create stores a dataset. The referenced connection must exist; the
	// series starts empty.
	Create(ctx context.Context, ds *models.Dataset) (*models.Dataset, error)

	// Get retrieves a dataset by ID.
	Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error)

	// ListByChart retrieves all datasets of a chart in creation order.
	ListByChart(ctx context.Context, chartID uuid.UUID) ([]*models.Dataset, error)

	// Update applies a partial patch.
	Update(ctx context.Context, id uuid.UUID, patch models.DatasetPatch) (*models.Dataset, error)

	// Delete removes a dataset.
	Delete(ctx context.Context, id uuid.UUID) error

	// Execute fetches records through the dataset's connection, transforms
	// them and stores the series. Only data and updatedAt change. On any
	// error the stored dataset is left untouched.
	Execute(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
}

type datasetService struct {
	repo        repositories.DatasetRepository
	connections repositories.ConnectionRepository
	executor    QueryExecutor
	seq         *executionSequencer
	now         func() time.Time
	logger      *zap.Logger
}

// NewDatasetService creates a dataset service.
func NewDatasetService(
	repo repositories.DatasetRepository,
	connections repositories.ConnectionRepository,
	executor QueryExecutor,
	logger *zap.Logger,
) DatasetService {
	return &datasetService{
		repo:        repo,
		connections: connections,
		executor:    executor,
		seq:         newExecutionSequencer(),
		now:         time.Now,
		logger:      logger.Named("dataset-service"),
	}
}

func (s *datasetService) Create(ctx context.Context, ds *models.Dataset) (*models.Dataset, error) {
	stored := ds.Clone()
	stored.ID = uuid.Nil
	stored.Data = []models.Point{}

	var fields []apperrors.FieldError
	if stored.ChartID == uuid.Nil {
		fields = append(fields, apperrors.FieldError{Field: "chartId", Message: "chartId is required"})
	}
	if stored.ConnectionID == uuid.Nil {
		fields = append(fields, apperrors.FieldError{Field: "connectionId", Message: "connectionId is required"})
	}
	if len(fields) > 0 {
		return nil, &apperrors.ValidationError{Fields: fields}
	}
	if err := ValidateFilters(stored.Filters); err != nil {
		return nil, err
	}
	if err := s.requireConnection(ctx, stored.ConnectionID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	id, err := s.repo.Insert(ctx, stored)
	if err != nil {
		return nil, err
	}
	stored.ID = id

	s.logger.Info("Created dataset",
		zap.String("id", id.String()),
		zap.String("chart_id", stored.ChartID.String()),
		zap.String("connection_id", stored.ConnectionID.String()),
	)
	return stored, nil
}

func (s *datasetService) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.repo.Find(ctx, id)
}

func (s *datasetService) ListByChart(ctx context.Context, chartID uuid.UUID) ([]*models.Dataset, error) {
	return s.repo.FindAllBy(ctx, repositories.By("chartId", chartID.String()))
}

func (s *datasetService) Update(ctx context.Context, id uuid.UUID, patch models.DatasetPatch) (*models.Dataset, error) {
	ds, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(ds)
	if err := ValidateFilters(ds.Filters); err != nil {
		return nil, err
	}
	if patch.ConnectionID != nil {
		if *patch.ConnectionID == uuid.Nil {
			return nil, apperrors.NewValidationError("connectionId", "connectionId must not be empty")
		}
		if err := s.requireConnection(ctx, *patch.ConnectionID); err != nil {
			return nil, err
		}
	}
	ds.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Replace(ctx, id, ds)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Updated dataset", zap.String("id", id.String()))
	return updated, nil
}

func (s *datasetService) Delete(ctx context.Context, id uuid.UUID) error {
	removed, err := s.repo.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return apperrors.ErrNotFound
	}

	s.logger.Info("Deleted dataset", zap.String("id", id.String()))
	return nil
}

func (s *datasetService) Execute(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	ds, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	ticket := s.seq.start(id)
	defer s.seq.done(id)

	records, err := s.executor.Fetch(ctx, ds.ConnectionID, datasource.FetchRequest{
		Query:    ds.Query,
		Endpoint: ds.APIEndpoint,
	})
	if err != nil {
		return nil, err
	}

	series, err := Transform(records, ds.XAxis, ds.YAxis, ds.Filters)
	if err != nil {
		return nil, err
	}

	// A caller that went away does not get to write.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *models.Dataset
	committed, err := s.seq.commit(id, ticket, func() error {
		// Re-read so edits made while the query ran are kept.
		current, err := s.repo.Find(ctx, id)
		if err != nil {
			return err
		}
		current.Data = series
		current.UpdatedAt = s.now().UTC()
		result, err = s.repo.Replace(ctx, id, current)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !committed {
		s.logger.Debug("Discarding superseded execution result",
			zap.String("id", id.String()),
			zap.Uint64("ticket", ticket),
		)
		return s.repo.Find(ctx, id)
	}

	s.logger.Info("Executed dataset",
		zap.String("id", id.String()),
		zap.Int("records", len(records)),
		zap.Int("points", len(series)),
	)
	return result, nil
}

func (s *datasetService) requireConnection(ctx context.Context, connectionID uuid.UUID) error {
	if _, err := s.connections.Find(ctx, connectionID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &apperrors.ConnectionNotFoundError{ID: connectionID}
		}
		return err
	}
	return nil
}

// executionSequencer hands out increasing tickets per dataset and lets a
// result commit only if no later-started execution has committed already.
// Commits for different datasets do not wait on each other.
type executionSequencer struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*sequence
}

// sequence tracks one dataset while it has executions in flight.
type sequence struct {
	mu        sync.Mutex // held across the commit write
	started   uint64     // guarded by executionSequencer.mu
	inflight  int        // guarded by executionSequencer.mu
	committed uint64     // guarded by mu
}

func newExecutionSequencer() *executionSequencer {
	return &executionSequencer{entries: make(map[uuid.UUID]*sequence)}
}

// start returns the ticket for a new execution. Every start must be paired
// with done.
func (q *executionSequencer) start(id uuid.UUID) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		e = &sequence{}
		q.entries[id] = e
	}
	e.started++
	e.inflight++
	return e.started
}

// done drops the dataset's entry once its last execution has finished.
func (q *executionSequencer) done(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return
	}
	e.inflight--
	if e.inflight <= 0 {
		delete(q.entries, id)
	}
}

// commit runs write while holding the dataset's lock, unless a newer ticket
// has already been committed. It reports whether write ran successfully.
func (q *executionSequencer) commit(id uuid.UUID, ticket uint64, write func() error) (bool, error) {
	q.mu.Lock()
	e, ok := q.entries[id]
	q.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("no execution in flight for dataset %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.committed > ticket {
		return false, nil
	}
	if err := write(); err != nil {
		return false, err
	}
	e.committed = ticket
	return true, nil
}

func (q *executionSequencer) tracked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

var _ DatasetService = (*datasetService)(nil)
