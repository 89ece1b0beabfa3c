package repositories

import (
	"github.com/goccy/go-json"

	"github.com/ekaya-inc/ekaya-charts/pkg/database"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// ConnectionRepository stores connections. Secret fields are persisted as
// given; the service layer encrypts them before they get here.
type ConnectionRepository interface {
	Store[*models.Connection]
}

// NewMemoryConnectionRepository creates an in-memory connection repository.
func NewMemoryConnectionRepository() ConnectionRepository {
	return NewMemoryStore((*models.Connection).Clone)
}

// NewPostgresConnectionRepository creates a connection repository on the connections table.
func NewPostgresConnectionRepository(db *database.DB) ConnectionRepository {
	return NewDocumentStore(db, "connections", connectionCodec)
}

// storedConnection is the persisted form. Connection hides its secrets from
// JSON, so they are carried in an explicit field here.
type storedConnection struct {
	models.PublicConnection
	Secrets models.ConnectionSecrets `json:"secrets"`
}

var connectionCodec = Codec[*models.Connection]{
	Encode: func(c *models.Connection) ([]byte, error) {
		return json.Marshal(storedConnection{PublicConnection: c.PublicConnection, Secrets: c.Secrets})
	},
	Decode: func(data []byte) (*models.Connection, error) {
		var stored storedConnection
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, err
		}
		return &models.Connection{PublicConnection: stored.PublicConnection, Secrets: stored.Secrets}, nil
	},
}
