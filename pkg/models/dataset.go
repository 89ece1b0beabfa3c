package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Record is a single raw row or document returned by an external source.
type Record map[string]any

// Filter restricts which records contribute to a dataset's series.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Point is one element of a chart series. A missing axis field yields nil.
type Point struct {
	X any `json:"x"`
	Y any `json:"y"`
}

// Dataset binds a chart to a connection and describes how raw records become a series.
type Dataset struct {
	ID           uuid.UUID `json:"id"`
	ChartID      uuid.UUID `json:"chartId"`
	ConnectionID uuid.UUID `json:"connectionId"`
	Query        string    `json:"query"`
	APIEndpoint  string    `json:"apiEndpoint"`
	XAxis        string    `json:"xAxis"`
	YAxis        string    `json:"yAxis"`
	Filters      []Filter  `json:"filters"`
	Data         []Point   `json:"data"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Normalize replaces nil slices with empty ones so they serialize as [].
func (d *Dataset) Normalize() {
	if d.Filters == nil {
		d.Filters = []Filter{}
	}
	if d.Data == nil {
		d.Data = []Point{}
	}
}

// Clone returns a copy of the dataset with independent slices.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := *d
	out.Filters = slices.Clone(d.Filters)
	out.Data = slices.Clone(d.Data)
	out.Normalize()
	return &out
}

// RecordID implements the store record contract.
func (d *Dataset) RecordID() uuid.UUID { return d.ID }

// SetRecordID implements the store record contract.
func (d *Dataset) SetRecordID(id uuid.UUID) { d.ID = id }

// Attribute returns the value of an indexed attribute used by store lookups.
func (d *Dataset) Attribute(field string) string {
	switch field {
	case "chartId":
		return d.ChartID.String()
	case "connectionId":
		return d.ConnectionID.String()
	}
	return ""
}
