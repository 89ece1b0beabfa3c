package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// ConnectionTester performs a live probe against an external source.
// Each implementation owns its handle and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the source is reachable with the given parameters.
	// Returns nil if the source is healthy.
	TestConnection(ctx context.Context) error

	Close() error
}

// FetchRequest describes what to retrieve from a source.
// Query is used by relational and document sources, Endpoint by HTTP sources.
// Managed backends accept either as the data path.
type FetchRequest struct {
	Query    string
	Endpoint string
}

// RecordFetcher retrieves raw records from an external source.
// Implementations must honor ctx cancellation and deadlines.
type RecordFetcher interface {
	FetchRecords(ctx context.Context, req FetchRequest) ([]models.Record, error)

	// Close releases the fetcher. Pooled handles stay with the ConnectionManager.
	Close() error
}

// DefaultMaxRows is the row cap applied when a fetcher is not configured otherwise.
const DefaultMaxRows = 1000

// MaxRowsFromConfig reads the "max_rows" config key, falling back to DefaultMaxRows.
func MaxRowsFromConfig(config map[string]any) int {
	if n := IntParam(config, "max_rows"); n > 0 {
		return n
	}
	return DefaultMaxRows
}
