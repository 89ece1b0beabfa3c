package datasource

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// AdapterFactory creates adapters from the registry.
type AdapterFactory interface {
	// NewConnectionTester creates a live-probe tester for the given type.
	NewConnectionTester(ctx context.Context, t models.ConnectionType, config map[string]any, connectionID uuid.UUID) (ConnectionTester, error)

	// NewRecordFetcher creates a record fetcher for the given type.
	NewRecordFetcher(ctx context.Context, t models.ConnectionType, config map[string]any, connectionID uuid.UUID) (RecordFetcher, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
	maxRows int
}

// NewAdapterFactory returns a factory that uses the global registry.
// maxRows is passed to fetchers as the row cap; <= 0 means DefaultMaxRows.
func NewAdapterFactory(connMgr *ConnectionManager, maxRows int) AdapterFactory {
	return &registryFactory{
		connMgr: connMgr,
		maxRows: maxRows,
	}
}

func (f *registryFactory) NewConnectionTester(ctx context.Context, t models.ConnectionType, config map[string]any, connectionID uuid.UUID) (ConnectionTester, error) {
	reg, err := f.registration(t)
	if err != nil {
		return nil, err
	}
	if reg.TesterFactory == nil {
		return nil, fmt.Errorf("live testing not supported for type: %s", t)
	}
	return reg.TesterFactory(ctx, f.withLimits(config), f.connMgr, connectionID)
}

func (f *registryFactory) NewRecordFetcher(ctx context.Context, t models.ConnectionType, config map[string]any, connectionID uuid.UUID) (RecordFetcher, error) {
	reg, err := f.registration(t)
	if err != nil {
		return nil, err
	}
	if reg.FetcherFactory == nil {
		return nil, fmt.Errorf("record fetching not supported for type: %s", t)
	}
	return reg.FetcherFactory(ctx, f.withLimits(config), f.connMgr, connectionID)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

func (f *registryFactory) registration(t models.ConnectionType) (AdapterRegistration, error) {
	if _, err := Resolve(t); err != nil {
		return AdapterRegistration{}, err
	}
	reg, ok := lookup(t)
	if !ok {
		return AdapterRegistration{}, fmt.Errorf("%w (adapter not compiled in)", &apperrors.UnsupportedTypeError{Type: string(t)})
	}
	return reg, nil
}

func (f *registryFactory) withLimits(config map[string]any) map[string]any {
	out := make(map[string]any, len(config)+1)
	for k, v := range config {
		out[k] = v
	}
	if f.maxRows > 0 {
		out["max_rows"] = f.maxRows
	}
	return out
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
