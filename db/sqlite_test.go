package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winequality/wine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPredictionHistory(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	sample := wine.DefaultSample()
	first, err := store.SavePrediction(PredictionRecord{
		Sample:     sample,
		Label:      wine.Bad,
		Confidence: 71.5,
		ModelType:  "softmax",
		CreatedAt:  base,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	sample.Alcohol = 12.5
	second, err := store.SavePrediction(PredictionRecord{
		Sample:     sample,
		Label:      wine.Good,
		Confidence: 64,
		CreatedAt:  base.Add(time.Minute),
	})
	require.NoError(t, err)

	records, err := store.RecentPredictions(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, wine.Good, records[0].Label)
	assert.Equal(t, 12.5, records[0].Sample.Alcohol)
	assert.Equal(t, first.ID, records[1].ID)
	assert.Equal(t, wine.DefaultSample(), records[1].Sample)
	assert.Equal(t, "softmax", records[1].ModelType)
	assert.True(t, base.Equal(records[1].CreatedAt))

	limited, err := store.RecentPredictions(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSavePredictionRequiresLabel(t *testing.T) {
	store := openTestStore(t)
	_, err := store.SavePrediction(PredictionRecord{Sample: wine.DefaultSample()})
	assert.Error(t, err)
}

func TestTrainingLog(t *testing.T) {
	store := openTestStore(t)

	logs, err := store.LoadTrainingLog()
	require.NoError(t, err)
	assert.Empty(t, logs)

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTrainingLog(TrainingLog{
		ModelName: "decision_tree", Scheme: "binary", Accuracy: 0.7, DataPoints: 60, TrainedAt: older,
	}))
	require.NoError(t, store.SaveTrainingLog(TrainingLog{
		ModelName: "softmax", Scheme: "ternary", Accuracy: 0.8, Precision: 0.75, Recall: 0.7, DataPoints: 60,
		TrainedAt: older.Add(time.Hour),
	}))
	assert.Error(t, store.SaveTrainingLog(TrainingLog{}))

	logs, err = store.LoadTrainingLog()
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "softmax", logs[0].ModelName)
	assert.Equal(t, "ternary", logs[0].Scheme)
	assert.Equal(t, 0.75, logs[0].Precision)
	assert.Equal(t, "decision_tree", logs[1].ModelName)
}

func TestOpenFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wine.db")
	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.SavePrediction(PredictionRecord{Sample: wine.DefaultSample(), Label: wine.Average, Confidence: 50})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	records, err := reopened.RecentPredictions(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, wine.Average, records[0].Label)

	_, err = Open("")
	assert.Error(t, err)
}
