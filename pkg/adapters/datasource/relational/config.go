package relational

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/config"
)

// Config contains the connection options shared by every relational driver.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // postgres: "disable", "prefer", "require", "verify-ca", "verify-full"

	// ConnectionString, when set, is used verbatim instead of the fields above.
	ConnectionString string

	MaxRows int
}

// DefaultPort returns the default port for a driver.
func DefaultPort(driver string) int {
	switch driver {
	case datasource.DriverMySQL:
		return 3306
	case datasource.DriverMSSQL:
		return 1433
	case datasource.DriverSQLite:
		return 0
	default:
		return 5432
	}
}

// DefaultSSLMode returns the default postgres SSL mode.
func DefaultSSLMode() string {
	return "prefer"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Driver:           datasource.StringParam(config, "driver"),
		Host:             datasource.StringParam(config, "host"),
		Port:             datasource.IntParam(config, "port"),
		User:             datasource.FirstStringParam(config, "username", "user"),
		Password:         datasource.StringParam(config, "password"),
		Database:         datasource.FirstStringParam(config, "database", "name"),
		SSLMode:          datasource.StringParam(config, "ssl_mode"),
		ConnectionString: datasource.StringParam(config, "connection_string"),
		MaxRows:          datasource.MaxRowsFromConfig(config),
	}

	if cfg.Driver == "" {
		cfg.Driver = datasource.DriverPostgres
	}
	switch cfg.Driver {
	case datasource.DriverPostgres, datasource.DriverMySQL, datasource.DriverMSSQL, datasource.DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported relational driver %q", cfg.Driver)
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort(cfg.Driver)
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = DefaultSSLMode()
	}

	if cfg.ConnectionString != "" {
		return cfg, nil
	}

	// sqlite only needs a file path.
	if cfg.Driver == datasource.DriverSQLite {
		if cfg.Database == "" {
			return nil, &datasource.MissingParamError{Param: "database"}
		}
		return cfg, nil
	}

	if cfg.Host == "" {
		return nil, &datasource.MissingParamError{Param: "host"}
	}
	if cfg.User == "" {
		return nil, &datasource.MissingParamError{Param: "username"}
	}
	if cfg.Database == "" {
		return nil, &datasource.MissingParamError{Param: "database"}
	}
	return cfg, nil
}

// DSN builds the driver-specific data source name.
// IMPORTANT: user-provided fields are escaped so passwords containing
// @, /, # or ? do not break URL parsing.
// When running in Docker, localhost is resolved to host.docker.internal.
func (c *Config) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}

	host := config.ResolveHostForDocker(c.Host)

	switch c.Driver {
	case datasource.DriverMSSQL:
		query := url.Values{}
		query.Add("database", c.Database)
		query.Add("connection timeout", "30")
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(host, strconv.Itoa(c.Port)),
			RawQuery: query.Encode(),
		}
		return u.String()

	case datasource.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		mc.ParseTime = true
		mc.Timeout = 10 * time.Second
		return mc.FormatDSN()

	case datasource.DriverSQLite:
		// Dashboards only read; query_only blocks writes at the engine level.
		return c.Database + "?_pragma=query_only(1)"

	default:
		u := url.URL{
			Scheme:   "postgresql",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(host, strconv.Itoa(c.Port)),
			Path:     "/" + c.Database,
			RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
		}
		return u.String()
	}
}
