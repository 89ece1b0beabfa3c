package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-charts/pkg/sql"
)

// Adapter runs dashboard queries against a relational database.
// Postgres goes through a pgx pool; every other driver through database/sql.
type Adapter struct {
	cfg    *Config
	pgPool *pgxpool.Pool
	db     *sql.DB
	owned  bool // true if we created the handle (TestConnection case or no manager)
}

// sqlDriverName maps a driver parameter onto its database/sql registration.
func sqlDriverName(driver string) string {
	switch driver {
	case datasource.DriverMSSQL:
		return "sqlserver"
	case datasource.DriverMySQL:
		return "mysql"
	case datasource.DriverSQLite:
		return "sqlite"
	}
	return driver
}

// NewAdapter creates a relational adapter. When connMgr is nil the adapter
// owns its handle and closes it on Close; otherwise the pool is borrowed from
// the manager and outlives the adapter.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, connectionID uuid.UUID) (*Adapter, error) {
	dsn := cfg.DSN()
	poolCfg := datasource.ConnectionManagerConfig{
		PoolMaxConns: datasource.DefaultPoolMaxConns,
		PoolMinConns: datasource.DefaultPoolMinConns,
	}
	if connMgr != nil {
		poolCfg = connMgr.Config()
	}

	create := func(ctx context.Context) (datasource.PoolConnector, error) {
		return openPool(ctx, cfg.Driver, dsn, poolCfg)
	}

	var connector datasource.PoolConnector
	var err error
	if connMgr == nil {
		connector, err = create(ctx)
	} else {
		connector, err = connMgr.GetOrCreateConnection(ctx, cfg.Driver, connectionID, dsn, create)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}

	a := &Adapter{cfg: cfg, owned: connMgr == nil}
	switch c := connector.(type) {
	case *datasource.PostgresPoolWrapper:
		a.pgPool = c.GetPool()
	case *datasource.SQLDBWrapper:
		a.db = c.GetDB()
	default:
		return nil, fmt.Errorf("unexpected pool type %T for driver %s", connector, cfg.Driver)
	}
	return a, nil
}

func openPool(ctx context.Context, driver, dsn string, poolCfg datasource.ConnectionManagerConfig) (datasource.PoolConnector, error) {
	if driver == datasource.DriverPostgres {
		pgCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse postgres connection string: %w", err)
		}
		pgCfg.MaxConns = poolCfg.PoolMaxConns
		pgCfg.MinConns = poolCfg.PoolMinConns

		pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		return datasource.NewPostgresPoolWrapper(pool), nil
	}

	db, err := sql.Open(sqlDriverName(driver), dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(int(poolCfg.PoolMaxConns))
	db.SetMaxIdleConns(int(poolCfg.PoolMinConns))
	return datasource.NewSQLDBWrapper(db, driver), nil
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Database access (simple query)
// 3. Correct database name, so a typo does not silently land on a default database
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var one int
	if err := a.queryRow(ctx, "SELECT 1", &one); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	nameQuery := currentDatabaseQuery(a.cfg.Driver)
	if nameQuery == "" || a.cfg.ConnectionString != "" {
		return nil
	}

	var currentDB sql.NullString
	if err := a.queryRow(ctx, nameQuery, &currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(currentDB.String, a.cfg.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.cfg.Database, currentDB.String)
	}
	return nil
}

func currentDatabaseQuery(driver string) string {
	switch driver {
	case datasource.DriverPostgres:
		return "SELECT current_database()"
	case datasource.DriverMySQL:
		return "SELECT DATABASE()"
	case datasource.DriverMSSQL:
		return "SELECT DB_NAME()"
	}
	return ""
}

// FetchRecords runs a single read-only statement capped at the configured row limit.
func (a *Adapter) FetchRecords(ctx context.Context, req datasource.FetchRequest) ([]models.Record, error) {
	query, err := sqlutil.ValidateDashboardQuery(req.Query)
	if err != nil {
		return nil, err
	}
	query = sqlutil.WrapWithRowLimit(query, a.cfg.Driver, a.cfg.MaxRows)

	if a.pgPool != nil {
		return a.fetchPostgres(ctx, query)
	}
	return a.fetchSQL(ctx, query)
}

func (a *Adapter) fetchPostgres(ctx context.Context, query string) ([]models.Record, error) {
	rows, err := a.pgPool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	records := make([]models.Record, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		rec := make(models.Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = normalizePostgresValue(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

func (a *Adapter) fetchSQL(ctx context.Context, query string) ([]models.Record, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	records := make([]models.Record, 0)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(models.Record, len(columns))
		for i, col := range columns {
			rec[col.Name()] = normalizeSQLValue(values[i], col.DatabaseTypeName())
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

func (a *Adapter) ping(ctx context.Context) error {
	if a.pgPool != nil {
		return a.pgPool.Ping(ctx)
	}
	return a.db.PingContext(ctx)
}

func (a *Adapter) queryRow(ctx context.Context, query string, dest any) error {
	if a.pgPool != nil {
		return a.pgPool.QueryRow(ctx, query).Scan(dest)
	}
	return a.db.QueryRowContext(ctx, query).Scan(dest)
}

// Close releases the adapter (but NOT the pool if managed).
func (a *Adapter) Close() error {
	if !a.owned {
		return nil
	}
	if a.pgPool != nil {
		a.pgPool.Close()
		return nil
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

var (
	_ datasource.ConnectionTester = (*Adapter)(nil)
	_ datasource.RecordFetcher    = (*Adapter)(nil)
)
