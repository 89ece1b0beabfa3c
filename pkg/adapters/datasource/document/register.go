package document

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypeDocumentStore,
			DisplayName: "Document Store",
			Description: "MongoDB 5+, MongoDB Atlas",
			Strategy:    datasource.StrategyDocumentQuery,
		},
		TesterFactory: func(ctx context.Context, config map[string]any, _ *datasource.ConnectionManager, connectionID uuid.UUID) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, nil, connectionID)
		},
		FetcherFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, connectionID uuid.UUID) (datasource.RecordFetcher, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, connMgr, connectionID)
		},
	})
}
