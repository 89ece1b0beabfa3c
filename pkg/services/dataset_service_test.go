package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
	"github.com/ekaya-inc/ekaya-charts/pkg/repositories"
)

type datasetFixture struct {
	svc      DatasetService
	datasets repositories.DatasetRepository
	conns    repositories.ConnectionRepository
	executor *mockQueryExecutor
	connID   uuid.UUID
}

func newDatasetFixture(t *testing.T) *datasetFixture {
	t.Helper()
	datasets := repositories.NewMemoryDatasetRepository()
	conns := repositories.NewMemoryConnectionRepository()

	connID, err := conns.Insert(context.Background(), apiConnection())
	require.NoError(t, err)

	executor := &mockQueryExecutor{fetchFunc: func(ctx context.Context, id uuid.UUID, req datasource.FetchRequest) ([]models.Record, error) {
		return monthlyRecords(), nil
	}}

	svc := NewDatasetService(datasets, conns, executor, zap.NewNop())
	return &datasetFixture{svc: svc, datasets: datasets, conns: conns, executor: executor, connID: connID}
}

func (f *datasetFixture) create(t *testing.T) *models.Dataset {
	t.Helper()
	ds, err := f.svc.Create(context.Background(), &models.Dataset{
		ChartID:      uuid.New(),
		ConnectionID: f.connID,
		APIEndpoint:  "/monthly",
		XAxis:        "t",
		YAxis:        "v",
	})
	require.NoError(t, err)
	return ds
}

func TestDatasetService_CreateStartsWithEmptySeries(t *testing.T) {
	f := newDatasetFixture(t)

	ds, err := f.svc.Create(context.Background(), &models.Dataset{
		ChartID:      uuid.New(),
		ConnectionID: f.connID,
		XAxis:        "t",
		YAxis:        "v",
		Data:         []models.Point{{X: "ignored", Y: 1}},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, ds.ID)
	assert.NotNil(t, ds.Data)
	assert.Empty(t, ds.Data)
	assert.NotNil(t, ds.Filters)
	assert.False(t, ds.CreatedAt.IsZero())
}

func TestDatasetService_CreateRequiresExistingConnection(t *testing.T) {
	f := newDatasetFixture(t)

	_, err := f.svc.Create(context.Background(), &models.Dataset{ChartID: uuid.New(), ConnectionID: uuid.New()})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	var nf *apperrors.ConnectionNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDatasetService_CreateValidation(t *testing.T) {
	f := newDatasetFixture(t)

	_, err := f.svc.Create(context.Background(), &models.Dataset{})
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Fields, 2)

	_, err = f.svc.Create(context.Background(), &models.Dataset{
		ChartID:      uuid.New(),
		ConnectionID: f.connID,
		Filters:      []models.Filter{{Field: "v", Op: "like", Value: "x"}},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDatasetService_ListByChart(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	chartID := uuid.New()

	for _, x := range []string{"first", "second"} {
		_, err := f.svc.Create(ctx, &models.Dataset{ChartID: chartID, ConnectionID: f.connID, XAxis: x})
		require.NoError(t, err)
	}
	f.create(t)

	list, err := f.svc.ListByChart(ctx, chartID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].XAxis)
	assert.Equal(t, "second", list[1].XAxis)
}

func TestDatasetService_UpdatePatch(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	y := "total"
	data := []models.Point{{X: "manual", Y: 1.0}}
	updated, err := f.svc.Update(ctx, ds.ID, models.DatasetPatch{YAxis: &y, Data: &data})
	require.NoError(t, err)

	assert.Equal(t, "t", updated.XAxis)
	assert.Equal(t, "total", updated.YAxis)
	assert.Equal(t, data, updated.Data)
	assert.Equal(t, ds.CreatedAt, updated.CreatedAt)
}

func TestDatasetService_UpdateValidatesConnectionAndFilters(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	missing := uuid.New()
	_, err := f.svc.Update(ctx, ds.ID, models.DatasetPatch{ConnectionID: &missing})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	filters := []models.Filter{{Field: "v", Op: "???"}}
	_, err = f.svc.Update(ctx, ds.ID, models.DatasetPatch{Filters: &filters})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.Update(ctx, uuid.New(), models.DatasetPatch{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDatasetService_Delete(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	require.NoError(t, f.svc.Delete(ctx, ds.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, ds.ID), apperrors.ErrNotFound)
}

func TestDatasetService_ExecuteStoresSeries(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	var gotReq datasource.FetchRequest
	var gotConn uuid.UUID
	f.executor.fetchFunc = func(ctx context.Context, id uuid.UUID, req datasource.FetchRequest) ([]models.Record, error) {
		gotConn, gotReq = id, req
		return monthlyRecords(), nil
	}

	result, err := f.svc.Execute(ctx, ds.ID)
	require.NoError(t, err)

	want := []models.Point{{X: "2024-01", Y: 100}, {X: "2024-02", Y: 150}}
	assert.Equal(t, want, result.Data)
	assert.Equal(t, f.connID, gotConn)
	assert.Equal(t, "/monthly", gotReq.Endpoint)

	stored, err := f.svc.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Data)
}

func TestDatasetService_ReExecuteChangesOnlyDataAndTimestamp(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	first, err := f.svc.Execute(ctx, ds.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := f.svc.Execute(ctx, ds.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	// Everything but data and updatedAt matches the created record.
	second.Data, second.UpdatedAt = ds.Data, ds.UpdatedAt
	assert.Equal(t, ds, second)
}

func TestDatasetService_ExecuteWithDeletedConnectionLeavesDataUntouched(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	_, err := f.svc.Execute(ctx, ds.ID)
	require.NoError(t, err)
	before, err := f.svc.Get(ctx, ds.ID)
	require.NoError(t, err)

	removed, err := f.conns.Remove(ctx, f.connID)
	require.NoError(t, err)
	require.True(t, removed)

	// Real executor over the now-empty connection store.
	connSvc := NewConnectionService(f.conns, nil, nil, nil, nil, nil, zap.NewNop())
	executor := NewQueryExecutor(connSvc, &mockAdapterFactory{}, ExecutorConfig{}, nil, zap.NewNop())
	svc := NewDatasetService(f.datasets, f.conns, executor, zap.NewNop())

	_, err = svc.Execute(ctx, ds.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	after, err := f.svc.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDatasetService_ExecuteFailureLeavesDataUntouched(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	f.executor.fetchFunc = func(ctx context.Context, id uuid.UUID, req datasource.FetchRequest) ([]models.Record, error) {
		return nil, &apperrors.ExecutionError{Op: "fetch records", Err: errors.New("boom")}
	}

	_, err := f.svc.Execute(ctx, ds.ID)
	assert.ErrorIs(t, err, apperrors.ErrExecution)

	after, err := f.svc.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, ds, after)
}

func TestDatasetService_ExecuteMissingDataset(t *testing.T) {
	f := newDatasetFixture(t)

	_, err := f.svc.Execute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDatasetService_CancelledExecutionDoesNotWrite(t *testing.T) {
	f := newDatasetFixture(t)
	ds := f.create(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.executor.fetchFunc = func(_ context.Context, id uuid.UUID, req datasource.FetchRequest) ([]models.Record, error) {
		// The source finishes, but the caller is already gone.
		cancel()
		return monthlyRecords(), nil
	}

	_, err := f.svc.Execute(ctx, ds.ID)
	assert.ErrorIs(t, err, context.Canceled)

	after, err := f.svc.Get(context.Background(), ds.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Data)
}

func TestDatasetService_LatestStartWins(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	ds := f.create(t)

	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	var calls int
	var mu sync.Mutex
	f.executor.fetchFunc = func(ctx context.Context, id uuid.UUID, req datasource.FetchRequest) ([]models.Record, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(slowStarted)
			<-releaseSlow
			return []models.Record{{"t": "old", "v": 1}}, nil
		}
		return []models.Record{{"t": "new", "v": 2}}, nil
	}

	var wg sync.WaitGroup
	var slowResult *models.Dataset
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		slowResult, err = f.svc.Execute(ctx, ds.ID)
		assert.NoError(t, err)
	}()
	<-slowStarted

	fast, err := f.svc.Execute(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Point{{X: "new", Y: 2}}, fast.Data)

	close(releaseSlow)
	wg.Wait()

	// The earlier-started execution finished last but must not overwrite.
	assert.Equal(t, []models.Point{{X: "new", Y: 2}}, slowResult.Data)
	stored, err := f.svc.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Point{{X: "new", Y: 2}}, stored.Data)
}

func TestExecutionSequencer(t *testing.T) {
	q := newExecutionSequencer()
	id := uuid.New()

	first := q.start(id)
	second := q.start(id)
	assert.Less(t, first, second)

	ok, err := q.commit(id, second, func() error { return nil })
	require.NoError(t, err)
	assert.True(t, ok)

	ran := false
	ok, err = q.commit(id, first, func() error { ran = true; return nil })
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, ran)

	// A failed write does not advance the committed ticket.
	third := q.start(id)
	_, err = q.commit(id, third, func() error { return errors.New("write failed") })
	assert.Error(t, err)
	ok, err = q.commit(id, third, func() error { return nil })
	require.NoError(t, err)
	assert.True(t, ok)

	q.done(id)
	q.done(id)
	q.done(id)
	assert.Zero(t, q.tracked())
	assert.Equal(t, uint64(1), q.start(id))
}

func TestExecutionSequencer_CommitsForDifferentDatasetsDoNotBlock(t *testing.T) {
	q := newExecutionSequencer()
	a, b := uuid.New(), uuid.New()
	ticketA := q.start(a)
	ticketB := q.start(b)

	inWrite := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = q.commit(a, ticketA, func() error {
			close(inWrite)
			<-release
			return nil
		})
	}()
	<-inWrite

	done := make(chan struct{})
	go func() {
		ok, err := q.commit(b, ticketB, func() error { return nil })
		assert.NoError(t, err)
		assert.True(t, ok)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commit for one dataset waited on another dataset's write")
	}
	close(release)
}

func TestDatasetService_ExecuteReleasesSequencerEntry(t *testing.T) {
	f := newDatasetFixture(t)
	ds := f.create(t)

	_, err := f.svc.Execute(context.Background(), ds.ID)
	require.NoError(t, err)

	f.executor.fetchFunc = func(context.Context, uuid.UUID, datasource.FetchRequest) ([]models.Record, error) {
		return nil, errors.New("boom")
	}
	_, err = f.svc.Execute(context.Background(), ds.ID)
	require.Error(t, err)

	assert.Zero(t, f.svc.(*datasetService).seq.tracked())
}
