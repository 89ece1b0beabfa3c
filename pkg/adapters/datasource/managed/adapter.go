// Package managed reads records from a backend-as-a-service realtime
// database over its REST interface ({databaseUrl}/{path}.json).
package managed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource/httpapi"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// KeyField holds the child key when an object of objects is flattened.
const KeyField = "_key"

// Config contains managed backend options.
type Config struct {
	DatabaseURL string
	APIKey      string
	MaxRows     int
}

// FromMap creates a Config from a generic config map. The database URL lives
// in the connection's opaque config map under one of several spellings.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		DatabaseURL: datasource.FirstStringParam(config, "databaseUrl", "databaseURL", "database_url", "url"),
		APIKey:      datasource.StringParam(config, "api_key"),
		MaxRows:     datasource.MaxRowsFromConfig(config),
	}
	if cfg.DatabaseURL == "" {
		return nil, &datasource.MissingParamError{Param: "databaseUrl"}
	}
	if _, err := httpapi.BuildURL(cfg.DatabaseURL, "", nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Adapter reads a path of the managed database.
type Adapter struct {
	cfg    *Config
	client *httpapi.Client
}

// NewAdapter creates a managed backend adapter.
func NewAdapter(cfg *Config, httpClient *http.Client) *Adapter {
	return &Adapter{cfg: cfg, client: httpapi.NewClient(httpClient)}
}

func (a *Adapter) url(dataPath string, extra url.Values) (string, error) {
	dataPath = strings.Trim(strings.TrimSpace(dataPath), "/")
	if dataPath == "" {
		dataPath = ".json"
	} else {
		dataPath += ".json"
	}
	if extra == nil {
		extra = url.Values{}
	}
	if a.cfg.APIKey != "" {
		extra.Set("auth", a.cfg.APIKey)
	}
	return httpapi.BuildURL(a.cfg.DatabaseURL, dataPath, extra)
}

// TestConnection does a shallow read of the root, which checks the URL and key
// without downloading the tree.
func (a *Adapter) TestConnection(ctx context.Context) error {
	target, err := a.url("", url.Values{"shallow": {"true"}})
	if err != nil {
		return err
	}
	status, err := a.client.Status(ctx, target, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return &httpapi.StatusError{StatusCode: status}
	}
	return nil
}

// FetchRecords reads the path named by the query (or endpoint).
func (a *Adapter) FetchRecords(ctx context.Context, req datasource.FetchRequest) ([]models.Record, error) {
	dataPath := req.Query
	if strings.TrimSpace(dataPath) == "" {
		dataPath = req.Endpoint
	}
	target, err := a.url(dataPath, nil)
	if err != nil {
		return nil, err
	}

	body, err := a.client.GetJSON(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", dataPath, err)
	}
	return Flatten(body, a.cfg.MaxRows), nil
}

// Flatten turns a realtime-database node into records. An object whose
// children are all objects becomes one record per child, ordered by key, with
// the key under KeyField. Arrays skip null holes. Anything else goes through
// httpapi.ToRecords.
func Flatten(v any, maxRows int) []models.Record {
	switch node := v.(type) {
	case map[string]any:
		if !allObjects(node) {
			break
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		records := make([]models.Record, 0, len(keys))
		for _, k := range keys {
			if maxRows > 0 && len(records) >= maxRows {
				break
			}
			child := node[k].(map[string]any)
			rec := make(models.Record, len(child)+1)
			for ck, cv := range child {
				rec[ck] = cv
			}
			rec[KeyField] = k
			records = append(records, rec)
		}
		return records

	case []any:
		compact := make([]any, 0, len(node))
		for _, item := range node {
			if item != nil {
				compact = append(compact, item)
			}
		}
		return httpapi.ToRecords(compact, maxRows)
	}
	return httpapi.ToRecords(v, maxRows)
}

func allObjects(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// Close is a no-op; the HTTP client is shared.
func (a *Adapter) Close() error {
	return nil
}

var (
	_ datasource.ConnectionTester = (*Adapter)(nil)
	_ datasource.RecordFetcher    = (*Adapter)(nil)
)
