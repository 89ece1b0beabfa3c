package repositories

import (
	"github.com/goccy/go-json"

	"github.com/ekaya-inc/ekaya-charts/pkg/database"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// DatasetRepository stores datasets.
type DatasetRepository interface {
	Store[*models.Dataset]
}

// NewMemoryDatasetRepository creates an in-memory dataset repository.
func NewMemoryDatasetRepository() DatasetRepository {
	return NewMemoryStore((*models.Dataset).Clone)
}

// NewPostgresDatasetRepository creates a dataset repository on the datasets table.
func NewPostgresDatasetRepository(db *database.DB) DatasetRepository {
	return NewDocumentStore(db, "datasets", datasetCodec)
}

var datasetCodec = Codec[*models.Dataset]{
	Encode: func(d *models.Dataset) ([]byte, error) {
		return json.Marshal(d)
	},
	Decode: func(data []byte) (*models.Dataset, error) {
		var d models.Dataset
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		d.Normalize()
		return &d, nil
	},
}
