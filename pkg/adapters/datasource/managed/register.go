package managed

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource/httpapi"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

var sharedHTTPClient = &http.Client{Timeout: httpapi.DefaultTimeout}

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypeManagedBackend,
			DisplayName: "Managed Backend",
			Description: "Realtime database REST API (e.g. Firebase)",
			Strategy:    datasource.StrategyManagedRead,
		},
		TesterFactory: func(ctx context.Context, config map[string]any, _ *datasource.ConnectionManager, _ uuid.UUID) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg, sharedHTTPClient), nil
		},
		FetcherFactory: func(ctx context.Context, config map[string]any, _ *datasource.ConnectionManager, _ uuid.UUID) (datasource.RecordFetcher, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg, sharedHTTPClient), nil
		},
	})
}
