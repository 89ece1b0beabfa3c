package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

var sharedHTTPClient = &http.Client{Timeout: DefaultTimeout}

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypeHTTPAPI,
			DisplayName: "HTTP API",
			Description: "Any JSON REST endpoint",
			Strategy:    datasource.StrategyHTTPRequest,
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
