package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/cache"
	"github.com/ekaya-inc/ekaya-charts/pkg/logging"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	"github.com/ekaya-inc/ekaya-charts/pkg/retry"
)

// Defaults for ExecutorConfig fields left at zero.
const (
	DefaultExecutionTimeout = 30 * time.Second
	DefaultMaxConcurrent    = 8
)

// ConnectionResolver loads a stored connection with its secrets decrypted.
type ConnectionResolver interface {
	GetDecrypted(ctx context.Context, id uuid.UUID) (*models.Connection, error)
}

// QueryExecutor fetches raw records for a query against a stored connection.
type QueryExecutor interface {
	// Fetch returns a ConnectionNotFoundError if the connection does not exist,
	// an UnsupportedTypeError for a type outside the supported set, and an
	// ExecutionError for any failure talking to the source.
	Fetch(ctx context.Context, connectionID uuid.UUID, req datasource.FetchRequest) ([]models.Record, error)
}

// ExecutorConfig bounds external calls.
type ExecutorConfig struct {
	Timeout       time.Duration
	MaxConcurrent int64
	// Breaker trips per connection after consecutive source failures.
	// The zero value never trips.
	Breaker retry.CircuitBreakerConfig
}

type queryExecutor struct {
	connections ConnectionResolver
	factory     datasource.AdapterFactory
	sem         *semaphore.Weighted
	breakers    *retry.BreakerSet
	timeout     time.Duration
	cache       *cache.RecordCache
	logger      *zap.Logger
}

// NewQueryExecutor creates an executor. recordCache may be nil.
func NewQueryExecutor(
	connections ConnectionResolver,
	factory datasource.AdapterFactory,
	cfg ExecutorConfig,
	recordCache *cache.RecordCache,
	logger *zap.Logger,
) QueryExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExecutionTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &queryExecutor{
		connections: connections,
		factory:     factory,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
		breakers:    retry.NewBreakerSet(cfg.Breaker),
		timeout:     cfg.Timeout,
		cache:       recordCache,
		logger:      logger.Named("query-executor"),
	}
}

func (e *queryExecutor) Fetch(ctx context.Context, connectionID uuid.UUID, req datasource.FetchRequest) ([]models.Record, error) {
	conn, err := e.connections.GetDecrypted(ctx, connectionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, &apperrors.ConnectionNotFoundError{ID: connectionID}
		}
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	if _, err := datasource.Resolve(conn.Type); err != nil {
		return nil, err
	}

	cacheKey := cache.Key(conn.ID, conn.UpdatedAt, req.Query, req.Endpoint)
	if records, ok := e.cache.Get(ctx, cacheKey); ok {
		e.logger.Debug("Serving records from cache", zap.String("connection_id", conn.ID.String()))
		return records, nil
	}

	breaker := e.breakers.Get(conn.ID, conn.UpdatedAt)
	if ok, err := breaker.Allow(); !ok {
		return nil, &apperrors.ExecutionError{Op: "source unavailable", Err: err}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		breaker.RecordAbandoned()
		return nil, &apperrors.ExecutionError{Op: "wait for execution slot", Err: err}
	}
	defer e.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	records, err := e.fetch(callCtx, conn, req)
	if err != nil {
		callerFault := errors.Is(err, apperrors.ErrUnsupported) || errors.Is(err, apperrors.ErrValidation)
		switch {
		case callerFault, ctx.Err() != nil:
			// Not the source's fault.
			breaker.RecordAbandoned()
		default:
			breaker.RecordFailure()
		}
		if callerFault {
			return nil, err
		}
		var execErr *apperrors.ExecutionError
		if errors.As(err, &execErr) && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			execErr.Err = fmt.Errorf("timed out after %s: %w", e.timeout, execErr.Err)
		}
		e.logger.Warn("Query execution failed",
			zap.String("connection_id", conn.ID.String()),
			zap.String("type", string(conn.Type)),
			zap.String("query", logging.SanitizeQuery(req.Query)),
			zap.String("endpoint", logging.SanitizeURL(req.Endpoint)),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}

	breaker.RecordSuccess()
	e.logger.Debug("Query executed",
		zap.String("connection_id", conn.ID.String()),
		zap.String("type", string(conn.Type)),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)

	e.cache.Set(ctx, cacheKey, records)
	return records, nil
}

func (e *queryExecutor) fetch(ctx context.Context, conn *models.Connection, req datasource.FetchRequest) ([]models.Record, error) {
	fetcher, err := e.factory.NewRecordFetcher(ctx, conn.Type, conn.ConfigMap(), conn.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnsupported) {
			return nil, err
		}
		return nil, &apperrors.ExecutionError{Op: "connect", Err: err}
	}
	defer fetcher.Close()

	records, err := fetcher.FetchRecords(ctx, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return nil, err
		}
		return nil, &apperrors.ExecutionError{Op: "fetch records", Err: err}
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}

var _ QueryExecutor = (*queryExecutor)(nil)
