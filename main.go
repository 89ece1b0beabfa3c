package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource/document"
	_ "github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource/httpapi"
	_ "github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource/managed"
	_ "github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource/relational"
	"github.com/ekaya-inc/ekaya-charts/pkg/audit"
	"github.com/ekaya-inc/ekaya-charts/pkg/auth"
	"github.com/ekaya-inc/ekaya-charts/pkg/cache"
	"github.com/ekaya-inc/ekaya-charts/pkg/config"
	"github.com/ekaya-inc/ekaya-charts/pkg/crypto"
	"github.com/ekaya-inc/ekaya-charts/pkg/database"
	"github.com/ekaya-inc/ekaya-charts/pkg/handlers"
	"github.com/ekaya-inc/ekaya-charts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-charts/pkg/repositories"
	"github.com/ekaya-inc/ekaya-charts/pkg/retry"
	"github.com/ekaya-inc/ekaya-charts/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		// Logger is not configured yet.
		_, _ = os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("base_url", cfg.BaseURL),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.Int("jwks_issuers", len(cfg.Auth.JWKSEndpoints)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Auth.Secret == "" {
		logger.Warn("CB_SECRET is not set; HS256 tokens will be rejected")
	}

	// Secrets at rest
	var cipher crypto.SecretCipher
	if cfg.ProjectCredentialsKey != "" {
		encryptor, err := crypto.NewCredentialEncryptor(cfg.ProjectCredentialsKey)
		if err != nil {
			return err
		}
		cipher = encryptor
	} else if cfg.Store.Driver == config.StoreDriverPostgres {
		return errors.New("PROJECT_CREDENTIALS_KEY is required with the postgres store")
	} else {
		logger.Warn("PROJECT_CREDENTIALS_KEY is not set; connection secrets are kept in memory unencrypted")
	}

	// Record store
	var (
		connRepo    repositories.ConnectionRepository
		datasetRepo repositories.DatasetRepository
	)
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cfg.Store.MigrationsPath, logger); err != nil {
			return err
		}
		connRepo = repositories.NewPostgresConnectionRepository(db)
		datasetRepo = repositories.NewPostgresDatasetRepository(db)
	default:
		connRepo = repositories.NewMemoryConnectionRepository()
		datasetRepo = repositories.NewMemoryDatasetRepository()
	}

	// Optional record cache
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	recordCache := cache.NewRecordCache(redisClient, cfg.Redis.CacheTTL, logger)

	// External sources
	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:   cfg.Datasource.ConnectionTTLMinutes,
		MaxPools:     cfg.Datasource.MaxPools,
		PoolMaxConns: cfg.Datasource.PoolMaxConns,
		PoolMinConns: cfg.Datasource.PoolMinConns,
	}, logger)
	defer func() { _ = connManager.Close() }()

	factory := datasource.NewAdapterFactory(connManager, cfg.Execution.MaxRows)
	tester := services.NewConnectionTester(factory, cfg.Execution.ProbeTimeout, cfg.Execution.AllowLiveProbe, logger)

	connService := services.NewConnectionService(connRepo, cipher, tester, factory, connManager, recordCache, logger)
	executor := services.NewQueryExecutor(connService, factory, services.ExecutorConfig{
		Timeout:       cfg.Execution.Timeout,
		MaxConcurrent: cfg.Execution.MaxConcurrent,
		Breaker: retry.CircuitBreakerConfig{
			Threshold:  cfg.Execution.CircuitThreshold,
			ResetAfter: cfg.Execution.CircuitResetAfter,
		},
	}, recordCache, logger)
	datasetService := services.NewDatasetService(datasetRepo, connRepo, executor, logger)

	// Authentication
	var jwksClient auth.JWKSClientInterface
	if len(cfg.Auth.JWKSEndpoints) > 0 {
		client, err := auth.NewJWKSClient(ctx, cfg.Auth.JWKSEndpoints)
		if err != nil {
			return err
		}
		defer client.Close()
		jwksClient = client
	}
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(cfg.Auth.Secret, jwksClient, logger), logger)

	// Routes
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, connManager, logger).RegisterRoutes(mux)
	auditor := audit.NewSecurityAuditor(logger)
	handlers.NewConnectionsHandler(connService, auditor, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewDatasetsHandler(datasetService, auditor, logger).RegisterRoutes(mux, authMiddleware)

	var handler http.Handler = mux
	handler = middleware.RequestLogger(logger)(handler)
	handler = gorillahandlers.CompressHandler(handler)
	handler = gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(cfg.AllowedOrigins()),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(handler)
	handler = gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(zap.NewStdLog(logger)),
		gorillahandlers.PrintRecoveryStack(cfg.Env == "local"),
	)(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Executions may take up to the execution timeout plus queueing.
		WriteTimeout: cfg.Execution.Timeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-charts", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

