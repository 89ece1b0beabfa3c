package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// testEncryptionKey is a base64 32-byte key.
const testEncryptionKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

// mockAdapterFactory hands out the configured tester and fetcher and records
// the config maps it was called with.
type mockAdapterFactory struct {
	mu sync.Mutex

	tester     datasource.ConnectionTester
	testerErr  error
	fetcher    datasource.RecordFetcher
	fetcherErr error

	capturedConfig map[string]any
	capturedType   models.ConnectionType
	fetcherCalls   atomic.Int32
}

func (m *mockAdapterFactory) NewConnectionTester(ctx context.Context, t models.ConnectionType, config map[string]any, connectionID uuid.UUID) (datasource.ConnectionTester, error) {
	m.mu.Lock()
	m.capturedConfig = config
	m.capturedType = t
	m.mu.Unlock()
	if m.testerErr != nil {
		return nil, m.testerErr
	}
	return m.tester, nil
}

func (m *mockAdapterFactory) NewRecordFetcher(ctx context.Context, t models.ConnectionType, config map[string]any, connectionID uuid.UUID) (datasource.RecordFetcher, error) {
	m.fetcherCalls.Add(1)
	m.mu.Lock()
	m.capturedConfig = config
	m.capturedType = t
	m.mu.Unlock()
	if m.fetcherErr != nil {
		return nil, m.fetcherErr
	}
	return m.fetcher, nil
}

func (m *mockAdapterFactory) ListTypes() []datasource.AdapterInfo {
	return []datasource.AdapterInfo{{Type: models.ConnectionTypeHTTPAPI, DisplayName: "HTTP API"}}
}

func (m *mockAdapterFactory) config() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedConfig
}

type mockConnectionTester struct {
	testFunc func(ctx context.Context) error
	closed   atomic.Bool
}

func (m *mockConnectionTester) TestConnection(ctx context.Context) error {
	if m.testFunc != nil {
		return m.testFunc(ctx)
	}
	return nil
}

func (m *mockConnectionTester) Close() error {
	m.closed.Store(true)
	return nil
}

type mockRecordFetcher struct {
	fetchFunc func(ctx context.Context, req datasource.FetchRequest) ([]models.Record, error)
	records   []models.Record
	err       error
	closed    atomic.Int32
}

func (m *mockRecordFetcher) FetchRecords(ctx context.Context, req datasource.FetchRequest) ([]models.Record, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, req)
	}
	return m.records, m.err
}

func (m *mockRecordFetcher) Close() error {
	m.closed.Add(1)
	return nil
}

// mockQueryExecutor lets dataset tests control what an execution returns.
type mockQueryExecutor struct {
	fetchFunc func(ctx context.Context, connectionID uuid.UUID, req datasource.FetchRequest) ([]models.Record, error)
}

func (m *mockQueryExecutor) Fetch(ctx context.Context, connectionID uuid.UUID, req datasource.FetchRequest) ([]models.Record, error) {
	return m.fetchFunc(ctx, connectionID, req)
}

type mockEvictor struct {
	evicted []uuid.UUID
}

func (m *mockEvictor) Evict(connectionID uuid.UUID) int {
	m.evicted = append(m.evicted, connectionID)
	return 1
}
