package datasource

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// AdapterInfo describes a registered adapter for UI discovery.
type AdapterInfo struct {
	Type        models.ConnectionType `json:"type"`
	DisplayName string                `json:"displayName"`
	Description string                `json:"description"`
	Strategy    Strategy              `json:"strategy"`
}

// TesterFactory builds a live-probe tester from a flattened config map.
type TesterFactory func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, connectionID uuid.UUID) (ConnectionTester, error)

// FetcherFactory builds a record fetcher from a flattened config map.
type FetcherFactory func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, connectionID uuid.UUID) (RecordFetcher, error)

// AdapterRegistration contains info + factories for creating adapters.
// connectionID is uuid.Nil for unsaved parameters (connection tests).
type AdapterRegistration struct {
	Info           AdapterInfo
	TesterFactory  TesterFactory
	FetcherFactory FetcherFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.ConnectionType]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters ordered by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	slices.SortFunc(result, func(a, b AdapterInfo) int {
		return slices.Index(models.ConnectionTypes, a.Type) - slices.Index(models.ConnectionTypes, b.Type)
	})
	return result
}

func lookup(t models.ConnectionType) (AdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[t]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(t models.ConnectionType) bool {
	_, ok := lookup(t)
	return ok
}
