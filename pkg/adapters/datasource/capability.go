package datasource

import (
	"strings"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// Strategy names how a connection type is executed.
type Strategy string

const (
	StrategySQLQuery      Strategy = "sql-query"
	StrategyDocumentQuery Strategy = "document-query"
	StrategyHTTPRequest   Strategy = "http-request"
	StrategyManagedRead   Strategy = "managed-read"
)

// Requirement says how RequiredParams are combined.
type Requirement int

const (
	// RequireAll means every listed parameter must be present.
	RequireAll Requirement = iota
	// RequireAny means at least one listed parameter must be present.
	RequireAny
	// RequireNone means the type needs no parameters for a shallow check.
	RequireNone
)

// Capability describes what a connection type needs and how it is executed.
type Capability struct {
	Type           models.ConnectionType
	RequiredParams []string
	Requirement    Requirement
	Strategy       Strategy
}

var capabilities = map[models.ConnectionType]Capability{
	models.ConnectionTypeRelationalSQL: {
		Type:           models.ConnectionTypeRelationalSQL,
		RequiredParams: []string{"host", "port", "database", "username"},
		Requirement:    RequireAll,
		Strategy:       StrategySQLQuery,
	},
	models.ConnectionTypeDocumentStore: {
		Type:           models.ConnectionTypeDocumentStore,
		RequiredParams: []string{"host", "database"},
		Requirement:    RequireAny,
		Strategy:       StrategyDocumentQuery,
	},
	models.ConnectionTypeHTTPAPI: {
		Type:           models.ConnectionTypeHTTPAPI,
		RequiredParams: []string{"apiUrl"},
		Requirement:    RequireAll,
		Strategy:       StrategyHTTPRequest,
	},
	models.ConnectionTypeManagedBackend: {
		Type:        models.ConnectionTypeManagedBackend,
		Requirement: RequireNone,
		Strategy:    StrategyManagedRead,
	},
}

// Resolve returns the capability of a connection type. It is pure and total
// over the supported types; anything else yields an UnsupportedTypeError.
func Resolve(t models.ConnectionType) (Capability, error) {
	c, ok := capabilities[t]
	if !ok {
		return Capability{}, &apperrors.UnsupportedTypeError{Type: string(t)}
	}
	c.RequiredParams = append([]string(nil), c.RequiredParams...)
	return c, nil
}

// Satisfied reports whether params meet the capability's shallow requirements.
func (c Capability) Satisfied(params models.ConnectionParams) bool {
	switch c.Requirement {
	case RequireNone:
		return true
	case RequireAny:
		for _, name := range c.RequiredParams {
			if paramPresent(params, name) {
				return true
			}
		}
		return false
	default:
		for _, name := range c.RequiredParams {
			if !paramPresent(params, name) {
				return false
			}
		}
		return true
	}
}

func paramPresent(params models.ConnectionParams, name string) bool {
	switch name {
	case "host":
		return strings.TrimSpace(params.Host) != ""
	case "port":
		return params.Port > 0
	case "database":
		return strings.TrimSpace(params.Database) != ""
	case "username":
		return strings.TrimSpace(params.Username) != ""
	case "apiUrl":
		return strings.TrimSpace(params.APIURL) != ""
	}
	return false
}

// Relational drivers accepted in the "driver" parameter.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMSSQL    = "mssql"
	DriverSQLite   = "sqlite"
)

// typeAliases maps source-specific names used by older dashboard clients onto
// the supported types, with the implied relational driver.
var typeAliases = map[string]struct {
	t      models.ConnectionType
	driver string
}{
	"mysql":    {models.ConnectionTypeRelationalSQL, DriverMySQL},
	"postgres": {models.ConnectionTypeRelationalSQL, DriverPostgres},
	"mssql":    {models.ConnectionTypeRelationalSQL, DriverMSSQL},
	"sqlite":   {models.ConnectionTypeRelationalSQL, DriverSQLite},
	"mongodb":  {models.ConnectionTypeDocumentStore, ""},
	"api":      {models.ConnectionTypeHTTPAPI, ""},
	"firebase": {models.ConnectionTypeManagedBackend, ""},
}

// NormalizeType maps a raw type string, including legacy aliases, onto a
// supported ConnectionType. The returned driver is non-empty only when an
// alias implies one.
func NormalizeType(raw string) (models.ConnectionType, string, error) {
	t := models.ConnectionType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := capabilities[t]; ok {
		return t, "", nil
	}
	if alias, ok := typeAliases[string(t)]; ok {
		return alias.t, alias.driver, nil
	}
	return "", "", &apperrors.UnsupportedTypeError{Type: raw}
}
