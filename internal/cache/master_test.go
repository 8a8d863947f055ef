package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	stderrors "survey-sync/internal/common/errors"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() map[string]models.Collection {
	return map[string]models.Collection{
		models.CollectionCategories: {{"idCategoria": float64(1), "descripcion": "Viveres"}},
		models.CollectionQuestions: {
			{"idPregunta": float64(10), "questionKind": "SUPPLIER_COUNT"},
			{"idPregunta": float64(11)},
		},
		models.CollectionClients: {{"idCliente": "1"}},
	}
}

func TestMasterCache_OnReadyBeforeLoad(t *testing.T) {
	c := New(logger.NewTestLogger(t))

	calls := 0
	var got Snapshot
	c.OnReady(func(s Snapshot) {
		calls++
		got = s
	})
	assert.Equal(t, 0, calls)
	assert.False(t, c.IsLoaded())

	require.NoError(t, c.LoadData(context.Background(), sampleData()))
	assert.Equal(t, 1, calls)
	assert.True(t, got.Loaded)
	assert.Len(t, got.Collection(models.CollectionCategories), 1)

	require.NoError(t, c.LoadData(context.Background(), sampleData()))
	assert.Equal(t, 1, calls, "subscriber fires at most once")
}

func TestMasterCache_OnReadyAfterLoadFiresImmediately(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	require.NoError(t, c.LoadData(context.Background(), sampleData()))

	calls := 0
	unsubscribe := c.OnReady(func(s Snapshot) {
		calls++
		assert.True(t, s.Loaded)
	})
	assert.Equal(t, 1, calls)
	unsubscribe()
	assert.Equal(t, 1, calls)
}

func TestMasterCache_LoadIsIdempotent(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	loads := 0
	source := func(context.Context) (map[string]models.Collection, error) {
		loads++
		return sampleData(), nil
	}

	require.NoError(t, c.Load(context.Background(), source))
	require.NoError(t, c.Load(context.Background(), source))
	assert.Equal(t, 1, loads)
}

func TestMasterCache_ConcurrentLoadRunsOnce(t *testing.T) {
	c := New(logger.NewNoOpLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	loads := 0
	source := func(context.Context) (map[string]models.Collection, error) {
		loads++
		close(started)
		<-release
		return sampleData(), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Load(context.Background(), source))
	}()
	<-started
	require.NoError(t, c.Load(context.Background(), source), "load while loading is a no-op")
	close(release)
	wg.Wait()

	assert.Equal(t, 1, loads)
	assert.True(t, c.IsLoaded())
}

func TestMasterCache_MissingSlotsDefaultEmpty(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	require.NoError(t, c.LoadData(context.Background(), sampleData()))

	snap := c.Get()
	for _, slot := range Slots {
		assert.NotNil(t, snap.Collections[slot], slot)
	}
	assert.Empty(t, snap.Collection(models.CollectionParishes))
	_, hasClients := snap.Collections[models.CollectionClients]
	assert.False(t, hasClients, "client records are not reference data")
}

func TestMasterCache_QuestionsOfKind(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	require.NoError(t, c.LoadData(context.Background(), sampleData()))

	snap := c.Get()
	supplier := snap.QuestionsOfKind(models.QuestionSupplierCount)
	require.Len(t, supplier, 1)
	assert.Equal(t, int64(10), supplier[0].Int("idPregunta"))
	assert.Len(t, snap.QuestionsOfKind(models.QuestionGeneral), 1)
}

func TestMasterCache_LoadFailureKeepsSubscribers(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	calls := 0
	c.OnReady(func(Snapshot) { calls++ })

	boom := errors.New("no data")
	err := c.Load(context.Background(), func(context.Context) (map[string]models.Collection, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	stdErr, ok := stderrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeCacheLoadFailed, stdErr.Code)

	assert.False(t, c.IsLoaded())
	assert.Equal(t, 0, calls)

	require.NoError(t, c.LoadData(context.Background(), sampleData()))
	assert.Equal(t, 1, calls, "queued subscriber fires on the next successful load")
}

func TestMasterCache_UnsubscribeBeforeLoad(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	calls := 0
	unsubscribe := c.OnReady(func(Snapshot) { calls++ })
	unsubscribe()

	require.NoError(t, c.LoadData(context.Background(), sampleData()))
	assert.Equal(t, 0, calls)
}

func TestMasterCache_SubscribersRunInOrderAndSurvivePanics(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	var order []int
	c.OnReady(func(Snapshot) { order = append(order, 1) })
	c.OnReady(func(Snapshot) { panic("bad subscriber") })
	c.OnReady(func(Snapshot) { order = append(order, 3) })

	require.NoError(t, c.LoadData(context.Background(), sampleData()))
	assert.Equal(t, []int{1, 3}, order)
}

func TestMasterCache_Clear(t *testing.T) {
	c := New(logger.NewTestLogger(t))
	require.NoError(t, c.LoadData(context.Background(), sampleData()))

	calls := 0
	c.Clear()
	assert.False(t, c.IsLoaded())
	assert.False(t, c.Get().Loaded)
	assert.Empty(t, c.Get().Collections)

	c.OnReady(func(Snapshot) { calls++ })
	assert.Equal(t, 0, calls)
	require.NoError(t, c.LoadData(context.Background(), sampleData()))
	assert.Equal(t, 1, calls)
}

func TestMasterCache_ClearDuringLoad(t *testing.T) {
	tests := []struct {
		name    string
		failErr error
	}{
		{name: "stale success is dropped"},
		{name: "stale failure is dropped", failErr: errors.New("offline")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(logger.NewTestLogger(t))
			release := make(chan struct{})
			started := make(chan struct{})
			slow := func(context.Context) (map[string]models.Collection, error) {
				close(started)
				<-release
				if tt.failErr != nil {
					return nil, tt.failErr
				}
				return sampleData(), nil
			}

			fired := 0
			c.OnReady(func(Snapshot) { fired++ })

			done := make(chan error, 1)
			go func() { done <- c.Load(context.Background(), slow) }()
			<-started

			c.Clear()
			close(release)
			require.NoError(t, <-done)

			assert.False(t, c.IsLoaded())
			assert.Empty(t, c.Get().Collections)
			assert.Equal(t, 0, fired, "subscribers dropped by Clear never fire")

			fresh := map[string]models.Collection{models.CollectionStates: {{"idEstado": float64(1)}}}
			require.NoError(t, c.LoadData(context.Background(), fresh))
			assert.True(t, c.IsLoaded())
			assert.Len(t, c.Get().Collection(models.CollectionStates), 1)
			assert.Empty(t, c.Get().Collection(models.CollectionCategories))
		})
	}
}

func TestMasterCache_ClearLetsNewLoadStartWhileStaleOneRuns(t *testing.T) {
	c := New(logger.NewNoOpLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	stale := func(context.Context) (map[string]models.Collection, error) {
		close(started)
		<-release
		return nil, errors.New("late failure")
	}

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background(), stale) }()
	<-started
	c.Clear()

	require.NoError(t, c.LoadData(context.Background(), sampleData()))
	close(release)
	require.NoError(t, <-done)

	assert.True(t, c.IsLoaded(), "late result of the cleared load leaves the new one intact")
	assert.Len(t, c.Get().Collection(models.CollectionCategories), 1)
}
