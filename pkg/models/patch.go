package models

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// ConnectionPatch is a partial connection update. Nil fields are left unchanged.
type ConnectionPatch struct {
	Name       *string            `json:"name,omitempty"`
	Type       *string            `json:"type,omitempty"`
	Driver     *string            `json:"driver,omitempty"`
	Host       *string            `json:"host,omitempty"`
	Port       *Port              `json:"port,omitempty"`
	Database   *string            `json:"database,omitempty"`
	Username   *string            `json:"username,omitempty"`
	SSLMode    *string            `json:"sslMode,omitempty"`
	Collection *string            `json:"collection,omitempty"`
	APIURL     *string            `json:"apiUrl,omitempty"`
	Headers    *map[string]string `json:"headers,omitempty"`
	DataPath   *string            `json:"dataPath,omitempty"`
	Config     *map[string]any    `json:"config,omitempty"`
	Active     *bool              `json:"active,omitempty"`

	Password         *string `json:"password,omitempty"`
	ConnectionString *string `json:"connectionString,omitempty"`
	APIKey           *string `json:"apiKey,omitempty"`
}

// TouchesSecrets reports whether the patch sets any secret field.
func (p *ConnectionPatch) TouchesSecrets() bool {
	return p.Password != nil || p.ConnectionString != nil || p.APIKey != nil
}

// Apply copies the set fields onto c. Type is not applied here since it
// needs normalization by the caller.
func (p *ConnectionPatch) Apply(c *Connection) {
	setString(&c.Name, p.Name)
	setString(&c.Driver, p.Driver)
	setString(&c.Host, p.Host)
	if p.Port != nil {
		c.Port = *p.Port
	}
	setString(&c.Database, p.Database)
	setString(&c.Username, p.Username)
	setString(&c.SSLMode, p.SSLMode)
	setString(&c.Collection, p.Collection)
	setString(&c.APIURL, p.APIURL)
	if p.Headers != nil {
		c.Headers = maps.Clone(*p.Headers)
	}
	setString(&c.DataPath, p.DataPath)
	if p.Config != nil {
		c.Config = cloneMap(*p.Config)
	}
	if p.Active != nil {
		c.Active = *p.Active
	}

	setString(&c.Secrets.Password, p.Password)
	setString(&c.Secrets.ConnectionString, p.ConnectionString)
	setString(&c.Secrets.APIKey, p.APIKey)
}

// DatasetPatch is a partial dataset update. Nil fields are left unchanged.
type DatasetPatch struct {
	ChartID      *uuid.UUID `json:"chartId,omitempty"`
	ConnectionID *uuid.UUID `json:"connectionId,omitempty"`
	Query        *string    `json:"query,omitempty"`
	APIEndpoint  *string    `json:"apiEndpoint,omitempty"`
	XAxis        *string    `json:"xAxis,omitempty"`
	YAxis        *string    `json:"yAxis,omitempty"`
	Filters      *[]Filter  `json:"filters,omitempty"`
	Data         *[]Point   `json:"data,omitempty"`
}

// Apply copies the set fields onto d.
func (p *DatasetPatch) Apply(d *Dataset) {
	if p.ChartID != nil {
		d.ChartID = *p.ChartID
	}
	if p.ConnectionID != nil {
		d.ConnectionID = *p.ConnectionID
	}
	setString(&d.Query, p.Query)
	setString(&d.APIEndpoint, p.APIEndpoint)
	setString(&d.XAxis, p.XAxis)
	setString(&d.YAxis, p.YAxis)
	if p.Filters != nil {
		d.Filters = slices.Clone(*p.Filters)
	}
	if p.Data != nil {
		d.Data = slices.Clone(*p.Data)
	}
	d.Normalize()
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
