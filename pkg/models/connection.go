// Package models contains domain types for ekaya-charts.
package models

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ConnectionType is the closed set of external source kinds a connection can point at.
type ConnectionType string

const (
	ConnectionTypeRelationalSQL  ConnectionType = "relational-sql"
	ConnectionTypeDocumentStore  ConnectionType = "document-store"
	ConnectionTypeHTTPAPI        ConnectionType = "http-api"
	ConnectionTypeManagedBackend ConnectionType = "managed-backend"
)

// ConnectionTypes lists every supported connection type in display order.
var ConnectionTypes = []ConnectionType{
	ConnectionTypeRelationalSQL,
	ConnectionTypeDocumentStore,
	ConnectionTypeHTTPAPI,
	ConnectionTypeManagedBackend,
}

// Port accepts both JSON numbers and numeric strings ("5432").
type Port int

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*p = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = Port(n)
	return nil
}

// ConnectionParams are the non-secret parameters of a connection.
// Which fields matter depends on the connection type.
type ConnectionParams struct {
	// relational-sql and document-store
	Driver     string `json:"driver,omitempty"`
	Host       string `json:"host,omitempty"`
	Port       Port   `json:"port,omitempty"`
	Database   string `json:"database,omitempty"`
	Username   string `json:"username,omitempty"`
	SSLMode    string `json:"sslMode,omitempty"`
	Collection string `json:"collection,omitempty"`

	// http-api
	APIURL   string            `json:"apiUrl,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	DataPath string            `json:"dataPath,omitempty"`

	// managed-backend
	Config map[string]any `json:"config,omitempty"`
}

// ConnectionSecrets are the parameters that must never leave the service.
// They are encrypted at rest and stripped by Redact.
type ConnectionSecrets struct {
	Password         string `json:"password,omitempty"`
	ConnectionString string `json:"connectionString,omitempty"`
	APIKey           string `json:"apiKey,omitempty"`
}

// IsZero reports whether no secret is set.
func (s ConnectionSecrets) IsZero() bool {
	return s == ConnectionSecrets{}
}

// PublicConnection is the redacted view of a connection, safe to return to clients.
type PublicConnection struct {
	ID        uuid.UUID      `json:"id"`
	ProjectID uuid.UUID      `json:"projectId"`
	Name      string         `json:"name"`
	Type      ConnectionType `json:"type"`
	ConnectionParams
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Redact is the identity on an already redacted connection.
func (p PublicConnection) Redact() PublicConnection {
	return p
}

// Connection is a stored external data source including its secrets.
type Connection struct {
	PublicConnection
	Secrets ConnectionSecrets `json:"-"`
}

// Redact returns the public projection of the connection. The result never
// carries any field of ConnectionSecrets, and maps are copied so callers cannot
// mutate the stored record through it.
func (c *Connection) Redact() PublicConnection {
	pub := c.PublicConnection
	pub.Headers = maps.Clone(c.Headers)
	pub.Config = cloneMap(c.Config)
	return pub
}

// Clone returns a deep copy of the connection.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	out := *c
	out.Headers = maps.Clone(c.Headers)
	out.Config = cloneMap(c.Config)
	return &out
}

// RecordID implements the store record contract.
func (c *Connection) RecordID() uuid.UUID { return c.ID }

// SetRecordID implements the store record contract.
func (c *Connection) SetRecordID(id uuid.UUID) { c.ID = id }

// Attribute returns the value of an indexed attribute used by store lookups.
func (c *Connection) Attribute(field string) string {
	switch field {
	case "projectId":
		return c.ProjectID.String()
	case "type":
		return string(c.Type)
	case "name":
		return c.Name
	}
	return ""
}

// ConfigMap flattens public and secret parameters into the generic map consumed
// by datasource adapters. Only set values are included.
func (c *Connection) ConfigMap() map[string]any {
	return BuildConfigMap(c.ConnectionParams, c.Secrets)
}

// BuildConfigMap flattens connection parameters into an adapter config map.
func BuildConfigMap(params ConnectionParams, secrets ConnectionSecrets) map[string]any {
	cfg := make(map[string]any)
	set := func(key, value string) {
		if value != "" {
			cfg[key] = value
		}
	}

	set("driver", params.Driver)
	set("host", params.Host)
	if params.Port > 0 {
		cfg["port"] = int(params.Port)
	}
	set("database", params.Database)
	set("username", params.Username)
	set("ssl_mode", params.SSLMode)
	set("collection", params.Collection)
	set("api_url", params.APIURL)
	set("data_path", params.DataPath)
	if len(params.Headers) > 0 {
		headers := make(map[string]any, len(params.Headers))
		for k, v := range params.Headers {
			headers[k] = v
		}
		cfg["headers"] = headers
	}
	for k, v := range params.Config {
		if _, exists := cfg[k]; !exists {
			cfg[k] = v
		}
	}

	set("password", secrets.Password)
	set("connection_string", secrets.ConnectionString)
	set("api_key", secrets.APIKey)
	return cfg
}

// cloneMap deep-copies a JSON-like map.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return maps.Clone(m)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return maps.Clone(m)
	}
	return out
}
