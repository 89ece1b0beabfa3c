package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/cache"
	"github.com/ekaya-inc/ekaya-charts/pkg/crypto"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	"github.com/ekaya-inc/ekaya-charts/pkg/repositories"
)

// PoolEvictor drops cached pools for a connection whose parameters changed.
type PoolEvictor interface {
	Evict(connectionID uuid.UUID) int
}

// ConnectionService manages connections. Every connection it returns is redacted.
type ConnectionService interface {
	// Create validates and stores a new connection. conn.Type may be a legacy alias.
	Create(ctx context.Context, conn *models.Connection) (models.PublicConnection, error)

	// Get retrieves a connection by ID.
	Get(ctx context.Context, id uuid.UUID) (models.PublicConnection, error)

	// ListByProject retrieves all connections of a project in creation order.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.PublicConnection, error)

	// Update applies a partial patch.
	Update(ctx context.Context, id uuid.UUID, patch models.ConnectionPatch) (models.PublicConnection, error)

	// Delete removes a connection. Datasets referencing it are left as they are.
	Delete(ctx context.Context, id uuid.UUID) error

	// Test checks candidate parameters without persisting them.
	Test(ctx context.Context, rawType string, params models.ConnectionParams, secrets models.ConnectionSecrets, live bool) TestResult

	// ListTypes returns the compiled-in adapter types.
	ListTypes() []datasource.AdapterInfo

	ConnectionResolver
}

type connectionService struct {
	repo    repositories.ConnectionRepository
	cipher  crypto.SecretCipher
	tester  ConnectionTester
	factory datasource.AdapterFactory
	evictor PoolEvictor
	cache   *cache.RecordCache
	now     func() time.Time
	logger  *zap.Logger
}

// NewConnectionService creates a connection service. cipher may be nil, in
// which case secrets are stored as given; evictor and recordCache may be nil.
func NewConnectionService(
	repo repositories.ConnectionRepository,
	cipher crypto.SecretCipher,
	tester ConnectionTester,
	factory datasource.AdapterFactory,
	evictor PoolEvictor,
	recordCache *cache.RecordCache,
	logger *zap.Logger,
) ConnectionService {
	return &connectionService{
		repo:    repo,
		cipher:  cipher,
		tester:  tester,
		factory: factory,
		evictor: evictor,
		cache:   recordCache,
		now:     time.Now,
		logger:  logger.Named("connection-service"),
	}
}

func (s *connectionService) Create(ctx context.Context, conn *models.Connection) (models.PublicConnection, error) {
	stored := conn.Clone()
	stored.ID = uuid.Nil
	stored.Name = strings.TrimSpace(stored.Name)

	var fields []apperrors.FieldError
	if stored.Name == "" {
		fields = append(fields, apperrors.FieldError{Field: "name", Message: "name is required"})
	}
	if stored.ProjectID == uuid.Nil {
		fields = append(fields, apperrors.FieldError{Field: "projectId", Message: "projectId is required"})
	}
	if len(fields) > 0 {
		return models.PublicConnection{}, &apperrors.ValidationError{Fields: fields}
	}

	if err := normalizeConnectionType(stored, string(stored.Type)); err != nil {
		return models.PublicConnection{}, err
	}

	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := s.encrypt(stored); err != nil {
		return models.PublicConnection{}, err
	}

	id, err := s.repo.Insert(ctx, stored)
	if err != nil {
		return models.PublicConnection{}, err
	}
	stored.ID = id

	s.logger.Info("Created connection",
		zap.String("id", id.String()),
		zap.String("project_id", stored.ProjectID.String()),
		zap.String("type", string(stored.Type)),
	)

	return stored.Redact(), nil
}

func (s *connectionService) Get(ctx context.Context, id uuid.UUID) (models.PublicConnection, error) {
	conn, err := s.repo.Find(ctx, id)
	if err != nil {
		return models.PublicConnection{}, err
	}
	return conn.Redact(), nil
}

func (s *connectionService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.PublicConnection, error) {
	conns, err := s.repo.FindAllBy(ctx, repositories.By("projectId", projectID.String()))
	if err != nil {
		return nil, err
	}

	out := make([]models.PublicConnection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Redact())
	}
	return out, nil
}

func (s *connectionService) Update(ctx context.Context, id uuid.UUID, patch models.ConnectionPatch) (models.PublicConnection, error) {
	conn, err := s.repo.Find(ctx, id)
	if err != nil {
		return models.PublicConnection{}, err
	}

	if err := s.decrypt(conn); err != nil {
		return models.PublicConnection{}, err
	}

	patch.Apply(conn)
	conn.Name = strings.TrimSpace(conn.Name)
	if conn.Name == "" {
		return models.PublicConnection{}, apperrors.NewValidationError("name", "name must not be empty")
	}
	if patch.Type != nil {
		t, driver, err := datasource.NormalizeType(*patch.Type)
		if err != nil {
			return models.PublicConnection{}, err
		}
		conn.Type = t
		// An alias such as "mysql" implies its driver over the stored one.
		if driver != "" && patch.Driver == nil {
			conn.Driver = driver
		}
	}
	conn.UpdatedAt = s.now().UTC()

	if err := s.encrypt(conn); err != nil {
		return models.PublicConnection{}, err
	}

	updated, err := s.repo.Replace(ctx, id, conn)
	if err != nil {
		return models.PublicConnection{}, err
	}

	s.release(ctx, id)
	s.logger.Info("Updated connection", zap.String("id", id.String()))

	return updated.Redact(), nil
}

func (s *connectionService) Delete(ctx context.Context, id uuid.UUID) error {
	removed, err := s.repo.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return apperrors.ErrNotFound
	}

	s.release(ctx, id)
	s.logger.Info("Deleted connection", zap.String("id", id.String()))
	return nil
}

func (s *connectionService) Test(ctx context.Context, rawType string, params models.ConnectionParams, secrets models.ConnectionSecrets, live bool) TestResult {
	t, driver, err := datasource.NormalizeType(rawType)
	if err != nil {
		return TestResult{Success: false, Message: MsgUnsupportedType}
	}
	if params.Driver == "" {
		params.Driver = driver
	}
	return s.tester.Test(ctx, t, params, secrets, live)
}

func (s *connectionService) ListTypes() []datasource.AdapterInfo {
	if s.factory == nil {
		return datasource.RegisteredAdapters()
	}
	return s.factory.ListTypes()
}

// GetDecrypted returns the full connection, secrets included. Only the query
// executor may call this.
func (s *connectionService) GetDecrypted(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	conn, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.decrypt(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// release drops pooled handles and cached records after the connection's
// parameters changed or it was removed.
func (s *connectionService) release(ctx context.Context, id uuid.UUID) {
	if s.evictor != nil {
		if n := s.evictor.Evict(id); n > 0 {
			s.logger.Debug("Evicted pools", zap.String("id", id.String()), zap.Int("count", n))
		}
	}
	s.cache.Invalidate(ctx, id)
}

func (s *connectionService) encrypt(conn *models.Connection) error {
	if s.cipher == nil {
		return nil
	}
	sec := &conn.Secrets
	if err := crypto.EncryptAll(s.cipher, &sec.Password, &sec.ConnectionString, &sec.APIKey); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}
	return nil
}

func (s *connectionService) decrypt(conn *models.Connection) error {
	if s.cipher == nil {
		return nil
	}
	sec := &conn.Secrets
	if err := crypto.DecryptAll(s.cipher, &sec.Password, &sec.ConnectionString, &sec.APIKey); err != nil {
		return fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	return nil
}

// normalizeConnectionType resolves legacy aliases and fills in the driver they imply.
func normalizeConnectionType(conn *models.Connection, raw string) error {
	t, driver, err := datasource.NormalizeType(raw)
	if err != nil {
		return err
	}
	conn.Type = t
	if conn.Driver == "" && driver != "" {
		conn.Driver = driver
	}
	return nil
}

var _ ConnectionService = (*connectionService)(nil)
