package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/logging"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// DefaultProbeTimeout bounds a live probe when none is configured.
const DefaultProbeTimeout = 5 * time.Second

// Messages returned by the connection tester.
const (
	MsgUnsupportedType = "Unsupported connection type"
	msgProbeFailed     = "Connection test failed: "
)

// TestResult is the outcome of a connection test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type testMessages struct {
	ok      string
	missing string
}

var shallowMessages = map[models.ConnectionType]testMessages{
	models.ConnectionTypeRelationalSQL: {
		ok:      "Database connection successful",
		missing: "Missing required database connection parameters",
	},
	models.ConnectionTypeDocumentStore: {
		ok:      "Document store connection successful",
		missing: "Missing document store connection parameters",
	},
	models.ConnectionTypeHTTPAPI: {
		ok:      "API connection successful",
		missing: "API URL is required",
	},
	models.ConnectionTypeManagedBackend: {
		ok: "Managed backend connection successful",
	},
}

// ConnectionTester checks candidate connection parameters without persisting anything.
type ConnectionTester interface {
	// Test runs the shallow parameter check and, when live is set and allowed,
	// a bounded probe against the source.
	Test(ctx context.Context, t models.ConnectionType, params models.ConnectionParams, secrets models.ConnectionSecrets, live bool) TestResult
}

type connectionTester struct {
	factory      datasource.AdapterFactory
	probeTimeout time.Duration
	allowLive    bool
	logger       *zap.Logger
}

// NewConnectionTester creates a tester. A nil factory disables live probes.
func NewConnectionTester(factory datasource.AdapterFactory, probeTimeout time.Duration, allowLive bool, logger *zap.Logger) ConnectionTester {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &connectionTester{
		factory:      factory,
		probeTimeout: probeTimeout,
		allowLive:    allowLive && factory != nil,
		logger:       logger.Named("connection-tester"),
	}
}

func (t *connectionTester) Test(ctx context.Context, ct models.ConnectionType, params models.ConnectionParams, secrets models.ConnectionSecrets, live bool) TestResult {
	capability, err := datasource.Resolve(ct)
	if err != nil {
		return TestResult{Success: false, Message: MsgUnsupportedType}
	}

	msgs := shallowMessages[ct]
	if !capability.Satisfied(params) {
		return TestResult{Success: false, Message: msgs.missing}
	}

	if live && t.allowLive {
		if err := t.probe(ctx, ct, params, secrets); err != nil {
			t.logger.Info("Live connection probe failed",
				zap.String("type", string(ct)),
				zap.String("error", logging.SanitizeError(err)),
			)
			return TestResult{Success: false, Message: msgProbeFailed + logging.SanitizeError(err)}
		}
	}

	return TestResult{Success: true, Message: msgs.ok}
}

// probe runs the adapter's connectivity check under the probe timeout. The
// result is awaited on a channel so an adapter that ignores its context still
// cannot hold the request past the deadline.
func (t *connectionTester) probe(ctx context.Context, ct models.ConnectionType, params models.ConnectionParams, secrets models.ConnectionSecrets) error {
	probeCtx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.runProbe(probeCtx, ct, models.BuildConfigMap(params, secrets))
	}()

	select {
	case err := <-done:
		return err
	case <-probeCtx.Done():
		return fmt.Errorf("timed out after %s", t.probeTimeout)
	}
}

func (t *connectionTester) runProbe(ctx context.Context, ct models.ConnectionType, config map[string]any) error {
	tester, err := t.factory.NewConnectionTester(ctx, ct, config, uuid.Nil)
	if err != nil {
		return err
	}
	defer tester.Close()

	return tester.TestConnection(ctx)
}

var _ ConnectionTester = (*connectionTester)(nil)
