package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

func newConnection(projectID uuid.UUID, name string) *models.Connection {
	return &models.Connection{
		PublicConnection: models.PublicConnection{
			ProjectID: projectID,
			Name:      name,
			Type:      models.ConnectionTypeRelationalSQL,
			ConnectionParams: models.ConnectionParams{
				Host:    "db.internal",
				Port:    5432,
				Headers: map[string]string{"X-Env": "prod"},
			},
		},
		Secrets: models.ConnectionSecrets{Password: "hunter2"},
	}
}

func TestMemoryStore_InsertAssignsID(t *testing.T) {
	repo := NewMemoryConnectionRepository()
	ctx := context.Background()

	id, err := repo.Insert(ctx, newConnection(uuid.New(), "main"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	got, err := repo.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "main", got.Name)
	assert.Equal(t, "hunter2", got.Secrets.Password)
}

func TestMemoryStore_InsertKeepsExplicitID(t *testing.T) {
	repo := NewMemoryConnectionRepository()
	ctx := context.Background()

	conn := newConnection(uuid.New(), "main")
	conn.ID = uuid.New()

	id, err := repo.Insert(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, id)

	_, err = repo.Insert(ctx, conn)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMemoryStore_FindMissing(t *testing.T) {
	repo := NewMemoryDatasetRepository()

	_, err := repo.Find(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	repo := NewMemoryConnectionRepository()
	ctx := context.Background()

	conn := newConnection(uuid.New(), "main")
	id, err := repo.Insert(ctx, conn)
	require.NoError(t, err)

	// Mutating the inserted value must not reach the store.
	conn.Name = "changed"
	conn.Headers["X-Env"] = "dev"

	got, err := repo.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "main", got.Name)
	assert.Equal(t, "prod", got.Headers["X-Env"])

	// Nor must mutating a returned value.
	got.Headers["X-Env"] = "staging"
	again, err := repo.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "prod", again.Headers["X-Env"])
}

func TestMemoryStore_FindAllByPreservesInsertionOrder(t *testing.T) {
	repo := NewMemoryConnectionRepository()
	ctx := context.Background()
	projectA, projectB := uuid.New(), uuid.New()

	for _, c := range []*models.Connection{
		newConnection(projectA, "first"),
		newConnection(projectB, "other"),
		newConnection(projectA, "second"),
		newConnection(projectA, "third"),
	} {
		_, err := repo.Insert(ctx, c)
		require.NoError(t, err)
	}

	got, err := repo.FindAllBy(ctx, By("projectId", projectA.String()))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "second", got[1].Name)
	assert.Equal(t, "third", got[2].Name)

	none, err := repo.FindAllBy(ctx, By("projectId", uuid.New().String()))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryStore_Replace(t *testing.T) {
	repo := NewMemoryDatasetRepository()
	ctx := context.Background()

	id, err := repo.Insert(ctx, &models.Dataset{ChartID: uuid.New(), XAxis: "t", YAxis: "v"})
	require.NoError(t, err)

	updated, err := repo.Replace(ctx, id, &models.Dataset{XAxis: "month", YAxis: "v", Data: []models.Point{{X: "a", Y: 1}}})
	require.NoError(t, err)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "month", updated.XAxis)

	got, err := repo.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.Point{{X: "a", Y: 1}}, got.Data)

	_, err = repo.Replace(ctx, uuid.New(), &models.Dataset{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_Remove(t *testing.T) {
	repo := NewMemoryDatasetRepository()
	ctx := context.Background()
	chartID := uuid.New()

	id, err := repo.Insert(ctx, &models.Dataset{ChartID: chartID})
	require.NoError(t, err)

	removed, err := repo.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Remove(ctx, id)
	require.NoError(t, err)
	assert.False(t, removed)

	list, err := repo.FindAllBy(ctx, By("chartId", chartID.String()))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	repo := NewMemoryDatasetRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Insert(ctx, &models.Dataset{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentReplace(t *testing.T) {
	store := NewMemoryStore((*models.Dataset).Clone)
	ctx := context.Background()

	id, err := store.Insert(ctx, &models.Dataset{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			points := make([]models.Point, n+1)
			for j := range points {
				points[j] = models.Point{X: n, Y: n}
			}
			_, err := store.Replace(ctx, id, &models.Dataset{Data: points})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.Find(ctx, id)
	require.NoError(t, err)
	// Whole-record replace: every point comes from the same writer.
	require.NotEmpty(t, got.Data)
	n := got.Data[0].X
	assert.Len(t, got.Data, n.(int)+1)
	for _, p := range got.Data {
		assert.Equal(t, n, p.X)
	}
	assert.Equal(t, 1, store.Len())
}
