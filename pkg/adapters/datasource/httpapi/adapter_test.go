package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
)

func newTestAdapter(t *testing.T, srv *httptest.Server, extra map[string]any) *Adapter {
	t.Helper()
	config := map[string]any{"api_url": srv.URL}
	for k, v := range extra {
		config[k] = v
	}
	cfg, err := FromMap(config)
	require.NoError(t, err)
	return NewAdapter(cfg, srv.Client())
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"api_url":   "https://api.example.com",
		"headers":   map[string]any{"X-Tenant": "abc"},
		"data_path": "data.items",
		"api_key":   "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "data.items", cfg.DataPath)
	assert.Equal(t, map[string]string{"X-Tenant": "abc", "Authorization": "Bearer k"}, cfg.requestHeaders())

	_, err = FromMap(map[string]any{})
	var missing *datasource.MissingParamError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "apiUrl", missing.Param)

	_, err = FromMap(map[string]any{"api_url": "not a url"})
	assert.Error(t, err)
}

func TestRequestHeaders_ExplicitAuthorizationWins(t *testing.T) {
	cfg := &Config{Headers: map[string]string{"Authorization": "Token t"}, APIKey: "k"}
	assert.Equal(t, "Token t", cfg.requestHeaders()["Authorization"])
}

func TestAdapter_FetchRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sales", r.URL.Path)
		assert.Equal(t, "2024", r.URL.Query().Get("year"))
		_, _ = w.Write([]byte(`{"data": {"items": [{"month": "Jan", "total": 10}, {"month": "Feb", "total": 12}]}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, map[string]any{"data_path": "data.items"})
	records, err := a.FetchRecords(context.Background(), datasource.FetchRequest{Endpoint: "/sales?year=2024"})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "Jan", records[0]["month"])
	assert.Equal(t, float64(12), records[1]["total"])
}

func TestAdapter_FetchRecords_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"a": 1}, {"a": 2}, {"a": 3}]`, 3},
		{"object", `{"a": 1}`, 1},
		{"scalar", `42`, 1},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			records, err := newTestAdapter(t, srv, nil).FetchRecords(context.Background(), datasource.FetchRequest{})
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestAdapter_FetchRecords_MaxRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1, 2, 3, 4, 5]`))
	}))
	defer srv.Close()

	records, err := newTestAdapter(t, srv, map[string]any{"max_rows": 2}).FetchRecords(context.Background(), datasource.FetchRequest{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, float64(1), records[0]["value"])
}

func TestAdapter_FetchRecords_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv, nil).FetchRecords(context.Background(), datasource.FetchRequest{Endpoint: "/secret"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestAdapter_FetchRecords_BadDataPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv, map[string]any{"data_path": "results"}).FetchRecords(context.Background(), datasource.FetchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "results" not found`)
}

func TestAdapter_TestConnection(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, nil)
	assert.NoError(t, a.TestConnection(context.Background()), "404 on the root still means reachable")

	status.Store(http.StatusBadGateway)
	assert.Error(t, a.TestConnection(context.Background()))
}

func TestExtractPath(t *testing.T) {
	doc := map[string]any{
		"results": []any{
			map[string]any{"rows": []any{"a", "b"}},
		},
	}

	v, err := ExtractPath(doc, "results.0.rows")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)

	v, err = ExtractPath(doc, "")
	require.NoError(t, err)
	assert.Equal(t, doc, v)

	_, err = ExtractPath(doc, "results.3")
	assert.Error(t, err)

	_, err = ExtractPath(doc, "results.0.rows.0.deeper")
	assert.Error(t, err)
}
