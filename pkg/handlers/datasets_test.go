package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

func sampleDataset() *models.Dataset {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Dataset{
		ID:           uuid.New(),
		ChartID:      uuid.New(),
		ConnectionID: uuid.New(),
		Query:        "SELECT month, total FROM sales",
		XAxis:        "month",
		YAxis:        "total",
		Filters:      []models.Filter{},
		Data:         []models.Point{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestDatasets_Create(t *testing.T) {
	ds := sampleDataset()
	var received *models.Dataset
	svc := &mockDatasetService{
		createFunc: func(_ context.Context, d *models.Dataset) (*models.Dataset, error) {
			received = d
			return ds, nil
		},
	}
	mux := newTestMux(&mockConnectionService{}, svc)

	body := `{
		"chartId": "` + ds.ChartID.String() + `",
		"connectionId": "` + ds.ConnectionID.String() + `",
		"query": "SELECT month, total FROM sales",
		"xAxis": "month",
		"yAxis": "total",
		"filters": [{"field": "region", "op": "=", "value": "EU"}]
	}`
	rec := serve(mux, http.MethodPost, "/api/dataset", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, received)
	assert.Equal(t, ds.ConnectionID, received.ConnectionID)
	require.Len(t, received.Filters, 1)
	assert.Equal(t, "EU", received.Filters[0].Value)

	resp := decodeMap(t, rec)
	assert.Equal(t, "Dataset created successfully", resp["message"])
	assert.Equal(t, ds.ID.String(), resp["id"])
	assert.Equal(t, []any{}, resp["data"])
}

func TestDatasets_CreateMissingConnection(t *testing.T) {
	missing := uuid.New()
	svc := &mockDatasetService{err: &apperrors.ConnectionNotFoundError{ID: missing}}
	mux := newTestMux(&mockConnectionService{}, svc)

	rec := serve(mux, http.MethodPost, "/api/dataset",
		`{"chartId": "`+uuid.NewString()+`", "connectionId": "`+missing.String()+`"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Connection not found", decodeMap(t, rec)["message"])
}

func TestDatasets_CreateValidation(t *testing.T) {
	mux := newTestMux(&mockConnectionService{}, &mockDatasetService{})

	rec := serve(mux, http.MethodPost, "/api/dataset",
		`{"chartId": "`+uuid.NewString()+`", "filters": [{"field": "a"}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ValidationErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	var fields []string
	for _, f := range body.Errors {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "connectionId")
	assert.Contains(t, fields, "filters.0.op")
}

func TestDatasets_CreateServiceValidation(t *testing.T) {
	svc := &mockDatasetService{err: apperrors.NewValidationError("filters[0].op", `unsupported operator "like"`)}
	mux := newTestMux(&mockConnectionService{}, svc)

	rec := serve(mux, http.MethodPost, "/api/dataset",
		`{"chartId": "`+uuid.NewString()+`", "connectionId": "`+uuid.NewString()+`", "filters": [{"field": "a", "op": "like", "value": 1}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ValidationErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "filters[0].op", body.Errors[0].Field)
}

func TestDatasets_ListByChart(t *testing.T) {
	a, b := sampleDataset(), sampleDataset()
	mux := newTestMux(&mockConnectionService{}, &mockDatasetService{datasets: []*models.Dataset{a, b}})

	rec := serve(mux, http.MethodGet, "/api/dataset/chart/"+a.ChartID.String(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestDatasets_ListByChartEmpty(t *testing.T) {
	mux := newTestMux(&mockConnectionService{}, &mockDatasetService{})

	rec := serve(mux, http.MethodGet, "/api/dataset/chart/"+uuid.NewString(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestDatasets_GetNotFound(t *testing.T) {
	mux := newTestMux(&mockConnectionService{}, &mockDatasetService{err: apperrors.ErrNotFound})

	rec := serve(mux, http.MethodGet, "/api/dataset/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Dataset not found", decodeMap(t, rec)["message"])
}

func TestDatasets_UpdateWithData(t *testing.T) {
	ds := sampleDataset()
	ds.Data = []models.Point{{X: "2024-01", Y: 10.0}}
	svc := &mockDatasetService{dataset: ds}
	mux := newTestMux(&mockConnectionService{}, svc)

	rec := serve(mux, http.MethodPut, "/api/dataset/"+ds.ID.String(),
		`{"yAxis": "revenue", "data": [{"x": "2024-01", "y": 10}]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Dataset updated successfully", decodeMap(t, rec)["message"])

	require.NotNil(t, svc.lastPatch.YAxis)
	assert.Equal(t, "revenue", *svc.lastPatch.YAxis)
	require.NotNil(t, svc.lastPatch.Data)
	assert.Len(t, *svc.lastPatch.Data, 1)
	assert.Nil(t, svc.lastPatch.Query)
}

func TestDatasets_UpdateRejectsMalformedData(t *testing.T) {
	mux := newTestMux(&mockConnectionService{}, &mockDatasetService{})

	rec := serve(mux, http.MethodPut, "/api/dataset/"+uuid.NewString(), `{"data": [{"x": 1}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasets_Delete(t *testing.T) {
	mux := newTestMux(&mockConnectionService{}, &mockDatasetService{})

	rec := serve(mux, http.MethodDelete, "/api/dataset/"+uuid.NewString(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dataset deleted successfully", decodeMap(t, rec)["message"])
}

func TestDatasets_Execute(t *testing.T) {
	ds := sampleDataset()
	ds.Data = []models.Point{{X: "2024-01", Y: 100.0}, {X: "2024-02", Y: 150.0}}
	mux := newTestMux(&mockConnectionService{}, &mockDatasetService{dataset: ds})

	rec := serve(mux, http.MethodPost, "/api/dataset/"+ds.ID.String()+"/execute", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExecuteDatasetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Dataset executed successfully", resp.Message)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "2024-01", resp.Data[0].X)
	assert.Equal(t, 150.0, resp.Data[1].Y)
}

func TestDatasets_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantMsg    string
	}{
		{"dataset missing", apperrors.ErrNotFound, http.StatusNotFound, "not_found", "Dataset not found"},
		{"connection deleted", &apperrors.ConnectionNotFoundError{ID: uuid.New()}, http.StatusNotFound, "not_found", "Connection not found"},
		{"source failure", &apperrors.ExecutionError{Op: "fetch records", Err: errors.New("password=secret rejected")},
			http.StatusBadGateway, "execution_failed", "Failed to execute query against the data source"},
		{"unsupported type", &apperrors.UnsupportedTypeError{Type: "ftp"}, http.StatusBadRequest, "unsupported_type", "Unsupported connection type"},
		{"rejected query", apperrors.InvalidInput("query", errors.New("a dataset query must be a SELECT or WITH statement")),
			http.StatusBadRequest, "validation_failed", "Validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&mockConnectionService{}, &mockDatasetService{err: tt.err})

			rec := serve(mux, http.MethodPost, "/api/dataset/"+uuid.NewString()+"/execute", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeMap(t, rec)
			assert.Equal(t, tt.wantError, body["error"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}
