package datasource

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/logging"
	"github.com/ekaya-inc/ekaya-charts/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxPools             = 50
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
	healthCheckTimeout          = 5 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	MaxPools     int
	PoolMaxConns int32
	PoolMinConns int32
}

// PoolCreator opens a new pool. It is only called when no healthy pool exists for the key.
type PoolCreator func(ctx context.Context) (PoolConnector, error)

// ConnectionManager caches connection pools to external sources with TTL-based
// expiry. Pools are keyed by kind, connection ID and a hash of the connection
// string, so editing a connection's parameters never reuses a stale pool.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*ManagedConnection // key: "{kind}:{connectionId}:{hash}"
	cfg         ConnectionManagerConfig
	ttl         time.Duration
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

// ManagedConnection is a pooled connector with its last use time.
type ManagedConnection struct {
	connector PoolConnector
	lastUsed  time.Time
	mu        sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = DefaultMaxPools
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	manager := &ConnectionManager{
		connections: make(map[string]*ManagedConnection),
		cfg:         cfg,
		ttl:         time.Duration(cfg.TTLMinutes) * time.Minute,
		stopChan:    make(chan struct{}),
		logger:      logger.Named("connection-manager"),
	}

	go manager.cleanupExpiredConnections(DefaultCleanupInterval)
	return manager
}

// Config returns the effective pool settings.
func (m *ConnectionManager) Config() ConnectionManagerConfig {
	return m.cfg
}

// PoolKey builds the cache key for a pool. The connection string is hashed so
// secrets never appear in keys or logs.
func PoolKey(kind string, connectionID uuid.UUID, connString string) string {
	return fmt.Sprintf("%s:%s:%016x", kind, connectionID, xxh3.HashString(connString))
}

// GetOrCreateConnection returns a healthy pooled connector for the key,
// creating one with create when none exists or the cached one fails its ping.
func (m *ConnectionManager) GetOrCreateConnection(
	ctx context.Context,
	kind string,
	connectionID uuid.UUID,
	connString string,
	create PoolCreator,
) (PoolConnector, error) {
	key := PoolKey(kind, connectionID, connString)

	m.mu.RLock()
	managed, exists := m.connections[key]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()

		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.connector.Ping(healthCtx)
		})
		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(key)
			return m.createNewConnection(ctx, key, create)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.connector, nil
	}

	return m.createNewConnection(ctx, key, create)
}

// createNewConnection creates a new pool with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createNewConnection(ctx context.Context, key string, create PoolCreator) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.connector, nil
	}

	if len(m.connections) >= m.cfg.MaxPools {
		m.logger.Warn("pool limit reached",
			zap.Int("current", len(m.connections)),
			zap.Int("max", m.cfg.MaxPools),
		)
		return nil, fmt.Errorf("maximum number of pooled connections reached (%d)", m.cfg.MaxPools)
	}

	connector, err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return create(ctx)
	})
	if err != nil {
		m.logger.Error("failed to create pool",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	m.connections[key] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("key", key),
		zap.String("type", connector.GetType()),
		zap.Int("total", len(m.connections)),
	)
	return connector, nil
}

// Evict closes every pool belonging to a connection. Called when a connection
// is updated or deleted.
func (m *ConnectionManager) Evict(connectionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	marker := ":" + connectionID.String() + ":"
	evicted := 0
	for key, managed := range m.connections {
		if !strings.Contains(key, marker) {
			continue
		}
		m.closeManaged(key, managed)
		delete(m.connections, key)
		evicted++
	}
	if evicted > 0 {
		m.logger.Debug("evicted pools", zap.String("connection_id", connectionID.String()), zap.Int("count", evicted))
	}
	return evicted
}

// removeConnection removes a connection from the pool and closes it.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		m.closeManaged(key, managed)
		delete(m.connections, key)
	}
}

func (m *ConnectionManager) closeManaged(key string, managed *ManagedConnection) {
	if managed == nil || managed.connector == nil {
		return
	}
	if err := managed.connector.Close(); err != nil {
		m.logger.Warn("failed to close pool",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
}

// cleanupExpiredConnections runs until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes pools that haven't been used within TTL.
// Lock ordering: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return 0
	}

	var expiredKeys []string
	for key, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > m.ttl {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		m.closeManaged(key, m.connections[key])
		delete(m.connections, key)
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
	return len(expiredKeys)
}

// Close closes all pools and stops the cleanup goroutine. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for key, managed := range m.connections {
		m.closeManaged(key, managed)
	}
	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	MaxPools          int            `json:"max_pools"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}

// GetStats returns statistics about the connection manager.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		MaxPools:          m.cfg.MaxPools,
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for key, managed := range m.connections {
		kind, _, _ := strings.Cut(key, ":")
		stats.ConnectionsByType[kind]++

		if managed != nil {
			managed.mu.Lock()
			idle := int(now.Sub(managed.lastUsed).Seconds())
			managed.mu.Unlock()
			if idle > stats.OldestIdleSeconds {
				stats.OldestIdleSeconds = idle
			}
		}
	}
	return stats
}
