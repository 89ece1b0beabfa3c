package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/audit"
	"github.com/ekaya-inc/ekaya-charts/pkg/auth"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	"github.com/ekaya-inc/ekaya-charts/pkg/services"
)

const datasetNotFoundMsg = "Dataset not found"

// CreateDatasetRequest is the POST /api/dataset body. The series always
// starts empty; data is not accepted here.
type CreateDatasetRequest struct {
	ChartID      uuid.UUID       `json:"chartId"`
	ConnectionID uuid.UUID       `json:"connectionId"`
	Query        string          `json:"query"`
	APIEndpoint  string          `json:"apiEndpoint"`
	XAxis        string          `json:"xAxis"`
	YAxis        string          `json:"yAxis"`
	Filters      []models.Filter `json:"filters"`
}

func (r *CreateDatasetRequest) toDataset() *models.Dataset {
	return &models.Dataset{
		ChartID:      r.ChartID,
		ConnectionID: r.ConnectionID,
		Query:        r.Query,
		APIEndpoint:  r.APIEndpoint,
		XAxis:        r.XAxis,
		YAxis:        r.YAxis,
		Filters:      r.Filters,
	}
}

// DatasetResponse is a dataset with an optional status message.
type DatasetResponse struct {
	*models.Dataset
	Message string `json:"message,omitempty"`
}

// ExecuteDatasetResponse is the body of a successful execution.
type ExecuteDatasetResponse struct {
	Message string         `json:"message"`
	Data    []models.Point `json:"data"`
}

// DatasetsHandler handles dataset-related HTTP requests.
type DatasetsHandler struct {
	datasetService services.DatasetService
	auditor        *audit.SecurityAuditor
	logger         *zap.Logger
}

// NewDatasetsHandler creates a new datasets handler. auditor may be nil.
func NewDatasetsHandler(datasetService services.DatasetService, auditor *audit.SecurityAuditor, logger *zap.Logger) *DatasetsHandler {
	return &DatasetsHandler{
		datasetService: datasetService,
		auditor:        auditor,
		logger:         logger,
	}
}

// RegisterRoutes registers the dataset routes. All require authentication.
func (h *DatasetsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.Handle("GET /api/dataset/chart/{chartId}", authMiddleware.RequireAuth(http.HandlerFunc(h.ListByChart)))
	mux.Handle("GET /api/dataset/{id}", authMiddleware.RequireAuth(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/dataset", authMiddleware.RequireAuth(http.HandlerFunc(h.Create)))
	mux.Handle("PUT /api/dataset/{id}", authMiddleware.RequireAuth(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/dataset/{id}", authMiddleware.RequireAuth(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /api/dataset/{id}/execute", authMiddleware.RequireAuth(http.HandlerFunc(h.Execute)))
}

// ListByChart handles GET /api/dataset/chart/{chartId}
func (h *DatasetsHandler) ListByChart(w http.ResponseWriter, r *http.Request) {
	chartID, ok := ParseChartID(w, r, h.logger)
	if !ok {
		return
	}

	datasets, err := h.datasetService.ListByChart(r.Context(), chartID)
	if err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}
	if datasets == nil {
		datasets = []*models.Dataset{}
	}

	if err := WriteJSON(w, http.StatusOK, datasets); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Get handles GET /api/dataset/{id}
func (h *DatasetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	ds, err := h.datasetService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ds); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Create handles POST /api/dataset
// Responds 404 when the referenced connection does not exist.
func (h *DatasetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDatasetRequest
	if err := decodeBody(r, createDatasetValidator, &req); err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}

	ds, err := h.datasetService.Create(r.Context(), req.toDataset())
	if err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}

	resp := DatasetResponse{Dataset: ds, Message: "Dataset created successfully"}
	if err := WriteJSON(w, http.StatusCreated, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Update handles PUT /api/dataset/{id}
func (h *DatasetsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	var patch models.DatasetPatch
	if err := decodeBody(r, updateDatasetValidator, &patch); err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}

	ds, err := h.datasetService.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}

	resp := DatasetResponse{Dataset: ds, Message: "Dataset updated successfully"}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Delete handles DELETE /api/dataset/{id}
func (h *DatasetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.datasetService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, MessageResponse{Message: "Dataset deleted successfully"}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Execute handles POST /api/dataset/{id}/execute
// Fetches records through the dataset's connection and stores the new series.
func (h *DatasetsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	ds, err := h.datasetService.Execute(r.Context(), id)
	h.auditor.LogExecution(r.Context(), id, err, r.RemoteAddr)
	if err != nil {
		writeServiceError(w, err, datasetNotFoundMsg, h.logger)
		return
	}

	data := ds.Data
	if data == nil {
		data = []models.Point{}
	}
	resp := ExecuteDatasetResponse{Message: "Dataset executed successfully", Data: data}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
