package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// Config contains HTTP API source options.
type Config struct {
	APIURL   string
	Headers  map[string]string
	DataPath string
	APIKey   string
	MaxRows  int
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		APIURL:   datasource.StringParam(config, "api_url"),
		Headers:  datasource.StringMapParam(config, "headers"),
		DataPath: datasource.StringParam(config, "data_path"),
		APIKey:   datasource.StringParam(config, "api_key"),
		MaxRows:  datasource.MaxRowsFromConfig(config),
	}
	if cfg.APIURL == "" {
		return nil, &datasource.MissingParamError{Param: "apiUrl"}
	}
	if _, err := BuildURL(cfg.APIURL, "", nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// requestHeaders returns configured headers plus a bearer token from the API
// key, unless an Authorization header is already configured.
func (c *Config) requestHeaders() map[string]string {
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	if c.APIKey != "" {
		if _, ok := headers["Authorization"]; !ok {
			headers["Authorization"] = "Bearer " + c.APIKey
		}
	}
	return headers
}

// Adapter fetches records from a JSON HTTP API.
type Adapter struct {
	cfg    *Config
	client *Client
}

// NewAdapter creates an HTTP API adapter.
func NewAdapter(cfg *Config, httpClient *http.Client) *Adapter {
	return &Adapter{cfg: cfg, client: NewClient(httpClient)}
}

// TestConnection checks that the API answers. Anything below 500 counts as
// reachable, since the base URL itself often has no resource behind it.
func (a *Adapter) TestConnection(ctx context.Context) error {
	target, err := BuildURL(a.cfg.APIURL, "", nil)
	if err != nil {
		return err
	}
	status, err := a.client.Status(ctx, target, a.cfg.requestHeaders())
	if err != nil {
		return err
	}
	if status >= 500 {
		return &StatusError{StatusCode: status}
	}
	return nil
}

// FetchRecords GETs apiUrl + endpoint and selects records at the configured dataPath.
func (a *Adapter) FetchRecords(ctx context.Context, req datasource.FetchRequest) ([]models.Record, error) {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = req.Query
	}
	target, err := BuildURL(a.cfg.APIURL, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := a.client.GetJSON(ctx, target, a.cfg.requestHeaders())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}

	data, err := ExtractPath(body, a.cfg.DataPath)
	if err != nil {
		return nil, err
	}
	return ToRecords(data, a.cfg.MaxRows), nil
}

// Close is a no-op; the HTTP client is shared.
func (a *Adapter) Close() error {
	return nil
}

var (
	_ datasource.ConnectionTester = (*Adapter)(nil)
	_ datasource.RecordFetcher    = (*Adapter)(nil)
)
