package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/audit"
	"github.com/ekaya-inc/ekaya-charts/pkg/auth"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	"github.com/ekaya-inc/ekaya-charts/pkg/services"
	"github.com/ekaya-inc/ekaya-charts/pkg/testhelpers"
)

// mockConnectionService is a configurable mock for connection handler tests.
type mockConnectionService struct {
	createFunc func(ctx context.Context, conn *models.Connection) (models.PublicConnection, error)
	conn       models.PublicConnection
	conns      []models.PublicConnection
	testResult services.TestResult
	types      []datasource.AdapterInfo
	err        error

	lastPatch models.ConnectionPatch
	lastTest  struct {
		rawType string
		params  models.ConnectionParams
		secrets models.ConnectionSecrets
		live    bool
	}
}

func (m *mockConnectionService) Create(ctx context.Context, conn *models.Connection) (models.PublicConnection, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, conn)
	}
	return m.conn, m.err
}

func (m *mockConnectionService) Get(ctx context.Context, id uuid.UUID) (models.PublicConnection, error) {
	return m.conn, m.err
}

func (m *mockConnectionService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.PublicConnection, error) {
	return m.conns, m.err
}

func (m *mockConnectionService) Update(ctx context.Context, id uuid.UUID, patch models.ConnectionPatch) (models.PublicConnection, error) {
	m.lastPatch = patch
	return m.conn, m.err
}

func (m *mockConnectionService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.err
}

func (m *mockConnectionService) Test(ctx context.Context, rawType string, params models.ConnectionParams, secrets models.ConnectionSecrets, live bool) services.TestResult {
	m.lastTest.rawType = rawType
	m.lastTest.params = params
	m.lastTest.secrets = secrets
	m.lastTest.live = live
	return m.testResult
}

func (m *mockConnectionService) ListTypes() []datasource.AdapterInfo {
	return m.types
}

func (m *mockConnectionService) GetDecrypted(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	return nil, m.err
}

// mockDatasetService is a configurable mock for dataset handler tests.
type mockDatasetService struct {
	createFunc func(ctx context.Context, ds *models.Dataset) (*models.Dataset, error)
	dataset    *models.Dataset
	datasets   []*models.Dataset
	err        error

	lastPatch models.DatasetPatch
}

func (m *mockDatasetService) Create(ctx context.Context, ds *models.Dataset) (*models.Dataset, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, ds)
	}
	return m.dataset, m.err
}

func (m *mockDatasetService) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return m.dataset, m.err
}

func (m *mockDatasetService) ListByChart(ctx context.Context, chartID uuid.UUID) ([]*models.Dataset, error) {
	return m.datasets, m.err
}

func (m *mockDatasetService) Update(ctx context.Context, id uuid.UUID, patch models.DatasetPatch) (*models.Dataset, error) {
	m.lastPatch = patch
	return m.dataset, m.err
}

func (m *mockDatasetService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.err
}

func (m *mockDatasetService) Execute(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return m.dataset, m.err
}

// newTestMux wires both handlers behind real bearer authentication.
func newTestMux(connSvc services.ConnectionService, dsSvc services.DatasetService) *http.ServeMux {
	logger := zap.NewNop()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(testhelpers.TestSecret, nil, logger), logger)

	mux := http.NewServeMux()
	auditor := audit.NewSecurityAuditor(logger)
	NewConnectionsHandler(connSvc, auditor, logger).RegisterRoutes(mux, authMiddleware)
	NewDatasetsHandler(dsSvc, auditor, logger).RegisterRoutes(mux, authMiddleware)
	return mux
}

// serve sends an authenticated request through mux.
func serve(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer(testhelpers.TestSecret, "user-1", "user@example.com"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}
