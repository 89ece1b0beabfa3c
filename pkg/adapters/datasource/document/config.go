package document

import (
	"net"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/config"
)

// Config contains document store connection options.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Database   string
	Collection string // default collection when a query names none

	// ConnectionString, when set, is used verbatim (mongodb+srv:// etc).
	ConnectionString string

	MaxRows int
}

// DefaultPort returns the default MongoDB port.
func DefaultPort() int {
	return 27017
}

// FromMap creates a Config from a generic config map. Either a host or a
// database is enough; a missing host means a local server.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Host:             datasource.StringParam(config, "host"),
		Port:             datasource.IntParam(config, "port"),
		Username:         datasource.FirstStringParam(config, "username", "user"),
		Password:         datasource.StringParam(config, "password"),
		Database:         datasource.StringParam(config, "database"),
		Collection:       datasource.StringParam(config, "collection"),
		ConnectionString: datasource.StringParam(config, "connection_string"),
		MaxRows:          datasource.MaxRowsFromConfig(config),
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if cfg.ConnectionString == "" && cfg.Host == "" && cfg.Database == "" {
		return nil, &datasource.MissingParamError{Param: "host or database"}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	return cfg, nil
}

// URI builds the mongodb:// connection URI.
func (c *Config) URI() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}

	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port)),
		Path:   "/",
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
		u.RawQuery = url.Values{"authSource": {"admin"}}.Encode()
	}
	return u.String()
}
