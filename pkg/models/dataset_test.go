package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataset_NormalizeSerializesEmptyArrays(t *testing.T) {
	d := &Dataset{ID: uuid.New()}
	d.Normalize()

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"filters":[]`)
	assert.Contains(t, string(raw), `"data":[]`)
}

func TestDataset_CloneIsIndependent(t *testing.T) {
	d := &Dataset{
		ID:      uuid.New(),
		Filters: []Filter{{Field: "region", Op: "eq", Value: "eu"}},
		Data:    []Point{{X: "jan", Y: 1}},
	}

	c := d.Clone()
	c.Filters[0].Value = "us"
	c.Data[0].Y = 2

	assert.Equal(t, "eu", d.Filters[0].Value)
	assert.Equal(t, 1, d.Data[0].Y)
	assert.Nil(t, (*Dataset)(nil).Clone())
}

func TestDataset_Attribute(t *testing.T) {
	d := &Dataset{ChartID: uuid.New(), ConnectionID: uuid.New()}

	assert.Equal(t, d.ChartID.String(), d.Attribute("chartId"))
	assert.Equal(t, d.ConnectionID.String(), d.Attribute("connectionId"))
	assert.Empty(t, d.Attribute("query"))
}
