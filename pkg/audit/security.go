// Package audit provides security audit logging for SIEM consumption.
// It logs changes to connections and executions against external sources in
// structured JSON so they can be filtered apart from application logs.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/auth"
	"github.com/ekaya-inc/ekaya-charts/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	EventConnectionCreated SecurityEventType = "connection_created"
	EventConnectionUpdated SecurityEventType = "connection_updated"
	EventConnectionDeleted SecurityEventType = "connection_deleted"
	// EventLiveProbe is logged when a caller makes the service reach out to
	// an arbitrary source to test parameters.
	EventLiveProbe SecurityEventType = "connection_live_probe"
	// EventDatasetExecuted is logged for every execution attempt; failures
	// carry the sanitized error.
	EventDatasetExecuted SecurityEventType = "dataset_executed"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	EventType    SecurityEventType `json:"event_type"`
	ConnectionID uuid.UUID         `json:"connection_id,omitempty"`
	DatasetID    uuid.UUID         `json:"dataset_id,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	ClientIP     string            `json:"client_ip,omitempty"`
	Details      any               `json:"details"`
	Severity     string            `json:"severity"` // info, warning
}

// ConnectionChangeDetails describes a create, update or delete.
type ConnectionChangeDetails struct {
	ProjectID      uuid.UUID `json:"project_id,omitempty"`
	Type           string    `json:"type,omitempty"`
	SecretsChanged bool      `json:"secrets_changed"`
}

// SecurityAuditor logs security events for SIEM consumption. A nil auditor
// discards events.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogConnectionChange records a connection being created, updated or deleted.
// Secret rotations are logged at WARN so they stand out.
func (a *SecurityAuditor) LogConnectionChange(
	ctx context.Context,
	eventType SecurityEventType,
	connectionID uuid.UUID,
	details ConnectionChangeDetails,
	clientIP string,
) {
	if a == nil {
		return
	}

	severity := "info"
	if details.SecretsChanged || eventType == EventConnectionDeleted {
		severity = "warning"
	}

	event := a.newEvent(ctx, eventType, severity, clientIP)
	event.ConnectionID = connectionID
	event.Details = details

	a.write(event, "Connection changed",
		zap.String("connection_id", connectionID.String()),
		zap.Bool("secrets_changed", details.SecretsChanged),
	)
}

// LogLiveProbe records a live connection test and its outcome.
func (a *SecurityAuditor) LogLiveProbe(ctx context.Context, connectionType string, success bool, clientIP string) {
	if a == nil {
		return
	}

	event := a.newEvent(ctx, EventLiveProbe, "info", clientIP)
	event.Details = map[string]any{
		"type":    connectionType,
		"success": success,
	}

	a.write(event, "Live connection probe",
		zap.String("type", connectionType),
		zap.Bool("success", success),
	)
}

// LogExecution records a dataset execution. err is nil on success.
func (a *SecurityAuditor) LogExecution(ctx context.Context, datasetID uuid.UUID, execErr error, clientIP string) {
	if a == nil {
		return
	}

	severity := "info"
	details := map[string]any{"success": execErr == nil}
	if execErr != nil {
		severity = "warning"
		details["error"] = logging.SanitizeError(execErr)
	}

	event := a.newEvent(ctx, EventDatasetExecuted, severity, clientIP)
	event.DatasetID = datasetID
	event.Details = details

	a.write(event, "Dataset executed",
		zap.String("dataset_id", datasetID.String()),
		zap.Bool("success", execErr == nil),
	)
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, severity, clientIP string) SecurityEvent {
	return SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    auth.GetUserIDFromContext(ctx),
		ClientIP:  clientIP,
		Severity:  severity,
	}
}

func (a *SecurityAuditor) write(event SecurityEvent, msg string, fields ...zap.Field) {
	// Marshaling known types does not fail.
	eventJSON, _ := json.Marshal(event)

	fields = append(fields,
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("user_id", event.UserID),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
	if event.Severity == "warning" {
		a.logger.Warn(msg, fields...)
		return
	}
	a.logger.Info(msg, fields...)
}
