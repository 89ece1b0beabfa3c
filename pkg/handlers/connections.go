package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/audit"
	"github.com/ekaya-inc/ekaya-charts/pkg/auth"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	"github.com/ekaya-inc/ekaya-charts/pkg/services"
)

const connectionNotFoundMsg = "Connection not found"

// CreateConnectionRequest is the POST /api/connection body. Parameters and
// secrets sit at the top level next to name and type.
type CreateConnectionRequest struct {
	ProjectID uuid.UUID `json:"projectId"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	models.ConnectionParams
	models.ConnectionSecrets
}

// toConnection builds the connection to store. Type may still be an alias.
func (r *CreateConnectionRequest) toConnection() *models.Connection {
	return &models.Connection{
		PublicConnection: models.PublicConnection{
			ProjectID:        r.ProjectID,
			Name:             r.Name,
			Type:             models.ConnectionType(r.Type),
			ConnectionParams: r.ConnectionParams,
			Active:           r.Active,
		},
		Secrets: r.ConnectionSecrets,
	}
}

// TestConnectionRequest is the POST /api/connection/test body. Live requests
// a real round-trip to the source instead of the shallow parameter check.
type TestConnectionRequest struct {
	Type string `json:"type"`
	Live bool   `json:"live"`
	models.ConnectionParams
	models.ConnectionSecrets
}

// ConnectionResponse is a redacted connection with an optional status message.
type ConnectionResponse struct {
	models.PublicConnection
	Message string `json:"message,omitempty"`
}

// ConnectionsHandler handles connection-related HTTP requests.
type ConnectionsHandler struct {
	connectionService services.ConnectionService
	auditor           *audit.SecurityAuditor
	logger            *zap.Logger
}

// NewConnectionsHandler creates a new connections handler. auditor may be nil.
func NewConnectionsHandler(connectionService services.ConnectionService, auditor *audit.SecurityAuditor, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{
		connectionService: connectionService,
		auditor:           auditor,
		logger:            logger,
	}
}

// RegisterRoutes registers the connection routes. All require authentication.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.Handle("GET /api/connection/types", authMiddleware.RequireAuth(http.HandlerFunc(h.ListTypes)))
	mux.Handle("GET /api/connection/project/{projectId}", authMiddleware.RequireAuth(http.HandlerFunc(h.ListByProject)))
	mux.Handle("GET /api/connection/{id}", authMiddleware.RequireAuth(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/connection", authMiddleware.RequireAuth(http.HandlerFunc(h.Create)))
	mux.Handle("POST /api/connection/test", authMiddleware.RequireAuth(http.HandlerFunc(h.Test)))
	mux.Handle("PUT /api/connection/{id}", authMiddleware.RequireAuth(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/connection/{id}", authMiddleware.RequireAuth(http.HandlerFunc(h.Delete)))
}

// ListByProject handles GET /api/connection/project/{projectId}
func (h *ConnectionsHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	conns, err := h.connectionService.ListByProject(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, conns); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Get handles GET /api/connection/{id}
func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	conn, err := h.connectionService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, conn); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Create handles POST /api/connection
func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := decodeBody(r, createConnectionValidator, &req); err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}

	conn, err := h.connectionService.Create(r.Context(), req.toConnection())
	if err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}

	h.logger.Info("Connection created",
		zap.String("id", conn.ID.String()),
		zap.String("user_id", auth.GetUserIDFromContext(r.Context())))
	h.auditor.LogConnectionChange(r.Context(), audit.EventConnectionCreated, conn.ID, audit.ConnectionChangeDetails{
		ProjectID:      conn.ProjectID,
		Type:           string(conn.Type),
		SecretsChanged: !req.ConnectionSecrets.IsZero(),
	}, r.RemoteAddr)

	resp := ConnectionResponse{PublicConnection: conn, Message: "Connection created successfully"}
	if err := WriteJSON(w, http.StatusCreated, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Test handles POST /api/connection/test
// The result is always 200; success=false carries the reason.
func (h *ConnectionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if err := decodeBody(r, testConnectionValidator, &req); err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}

	result := h.connectionService.Test(r.Context(), req.Type, req.ConnectionParams, req.ConnectionSecrets, req.Live)
	if req.Live {
		h.auditor.LogLiveProbe(r.Context(), req.Type, result.Success, r.RemoteAddr)
	}
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Update handles PUT /api/connection/{id}
func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	var patch models.ConnectionPatch
	if err := decodeBody(r, updateConnectionValidator, &patch); err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}

	conn, err := h.connectionService.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}

	h.auditor.LogConnectionChange(r.Context(), audit.EventConnectionUpdated, id, audit.ConnectionChangeDetails{
		ProjectID:      conn.ProjectID,
		Type:           string(conn.Type),
		SecretsChanged: patch.TouchesSecrets(),
	}, r.RemoteAddr)

	resp := ConnectionResponse{PublicConnection: conn, Message: "Connection updated successfully"}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Delete handles DELETE /api/connection/{id}
// Datasets that reference the connection are kept and fail on execution.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.connectionService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, connectionNotFoundMsg, h.logger)
		return
	}
	h.auditor.LogConnectionChange(r.Context(), audit.EventConnectionDeleted, id, audit.ConnectionChangeDetails{}, r.RemoteAddr)

	if err := WriteJSON(w, http.StatusOK, MessageResponse{Message: "Connection deleted successfully"}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// ListTypes handles GET /api/connection/types
func (h *ConnectionsHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types := h.connectionService.ListTypes()
	if types == nil {
		types = []datasource.AdapterInfo{}
	}
	if err := WriteJSON(w, http.StatusOK, types); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
