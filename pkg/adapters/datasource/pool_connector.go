package datasource

import "context"

// PoolConnector abstracts pooled handles across source kinds
// (pgx pools, database/sql pools, document store clients).
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the source kind for logging/stats
	GetType() string
}
