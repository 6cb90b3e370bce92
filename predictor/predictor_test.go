package predictor

import (
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winequality/ml"
	"winequality/wine"
)

type identityScaler struct{ width int }

func (s identityScaler) Transform(v []float64) ([]float64, error) {
	if len(v) != s.width {
		return nil, ml.ErrShapeMismatch
	}
	return append([]float64(nil), v...), nil
}

func (s identityScaler) NumFeatures() int { return s.width }

// fixedModel always returns the same probabilities and counts calls.
type fixedModel struct {
	mu     sync.Mutex
	probs  []float64
	width  int
	called int
}

func (m *fixedModel) Type() string                     { return "fixed" }
func (m *fixedModel) Train([][]float64, []int) error   { return nil }
func (m *fixedModel) NumClasses() int                  { return len(m.probs) }
func (m *fixedModel) NumFeatures() int                 { return m.width }
func (m *fixedModel) Predict(f []float64) (int, error) { return 0, nil }

func (m *fixedModel) PredictProba(f []float64) ([]float64, error) {
	m.mu.Lock()
	m.called++
	m.mu.Unlock()
	if len(f) != m.width {
		return nil, ml.ErrShapeMismatch
	}
	return append([]float64(nil), m.probs...), nil
}

func goodSample() wine.Sample {
	s := wine.DefaultSample()
	s.Alcohol = 12.0
	s.Sulphates = 0.8
	s.VolatileAcidity = 0.3
	return s
}

func TestPredictConfidencesSumTo100(t *testing.T) {
	model := &fixedModel{probs: []float64{0.2, 0.5, 0.3}, width: wine.NumFeatures}
	p, err := New(identityScaler{wine.NumFeatures}, model, wine.Ternary)
	require.NoError(t, err)

	result, err := p.Predict(wine.DefaultSample())
	require.NoError(t, err)
	assert.Equal(t, wine.Average, result.Label)
	assert.Equal(t, 1, result.Index)
	require.Len(t, result.Confidences, 3)

	sum := 0.0
	for _, c := range result.Confidences {
		sum += c.Percent
	}
	assert.InDelta(t, 100, sum, 1e-9)
	assert.InDelta(t, 50, result.Top(), 1e-9)
	assert.InDelta(t, 20, result.Percentages()[wine.Bad], 1e-9)
}

func TestPredictRejectsInvalidProbabilities(t *testing.T) {
	nan := math.NaN()
	cases := map[string][]float64{
		"nan":      {nan, nan, nan},
		"zero":     {0, 0, 0},
		"negative": {0.5, -0.2, 0.7},
		"inf":      {math.Inf(1), 0, 0},
	}
	for name, probs := range cases {
		t.Run(name, func(t *testing.T) {
			model := &fixedModel{probs: probs, width: wine.NumFeatures}
			p, err := New(identityScaler{wine.NumFeatures}, model, wine.Ternary, WithCache(4))
			require.NoError(t, err)

			_, err = p.Predict(wine.DefaultSample())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidProbabilities)

			// Failures are not cached.
			_, err = p.Predict(wine.DefaultSample())
			require.Error(t, err)
			assert.Equal(t, 2, model.called)
		})
	}
}

func TestPredictRejectsNonFiniteSample(t *testing.T) {
	model := &fixedModel{probs: []float64{0.2, 0.5, 0.3}, width: wine.NumFeatures}
	p, err := New(identityScaler{wine.NumFeatures}, model, wine.Ternary)
	require.NoError(t, err)

	s := wine.DefaultSample()
	s.Alcohol = math.NaN()
	_, err = p.Predict(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, wine.ErrNonFinite)
	assert.Zero(t, model.called)
}

func TestPredictAdvice(t *testing.T) {
	model := &fixedModel{probs: []float64{0.9, 0.1}, width: wine.NumFeatures}
	p, err := New(identityScaler{wine.NumFeatures}, model, wine.Binary)
	require.NoError(t, err)

	result, err := p.Predict(wine.DefaultSample())
	require.NoError(t, err)
	assert.Equal(t, wine.Bad, result.Label)
	assert.Equal(t, []string{
		wine.AdviceIncreaseAlcohol,
		wine.AdviceIncreaseSulphates,
		wine.AdviceDecreaseVolatileAcidity,
	}, result.Advice)

	result, err = p.Predict(goodSample())
	require.NoError(t, err)
	// Advice ignores the model, so a BAD label can still come with the affirming message.
	assert.Equal(t, wine.Bad, result.Label)
	assert.Equal(t, []string{wine.AdviceLooksGood}, result.Advice)
}

func TestNewRejectsMismatchedArtifacts(t *testing.T) {
	_, err := New(identityScaler{5}, &fixedModel{probs: []float64{1, 0, 0}, width: wine.NumFeatures}, wine.Ternary)
	assert.ErrorIs(t, err, ml.ErrShapeMismatch)

	_, err = New(identityScaler{wine.NumFeatures}, &fixedModel{probs: []float64{1, 0, 0}, width: wine.NumFeatures}, wine.Binary)
	assert.Error(t, err)

	_, err = New(nil, nil, wine.Ternary)
	assert.Error(t, err)
}

func TestPredictShapeMismatch(t *testing.T) {
	// Scaler and model agree with each other but not with the sample width.
	model := &fixedModel{probs: []float64{1, 0, 0}, width: 4}
	p, err := New(identityScaler{4}, model, wine.Ternary)
	require.NoError(t, err)

	_, err = p.Predict(wine.DefaultSample())
	assert.ErrorIs(t, err, ml.ErrShapeMismatch)
}

func TestPredictIdempotent(t *testing.T) {
	for _, cacheSize := range []int{0, 8} {
		model := &fixedModel{probs: []float64{0.1, 0.6, 0.3}, width: wine.NumFeatures}
		p, err := New(identityScaler{wine.NumFeatures}, model, wine.Ternary, WithCache(cacheSize))
		require.NoError(t, err)

		first, err := p.Predict(wine.DefaultSample())
		require.NoError(t, err)
		second, err := p.Predict(wine.DefaultSample())
		require.NoError(t, err)
		assert.Equal(t, first, second, "cache size %d", cacheSize)
	}
}

func TestPredictCache(t *testing.T) {
	model := &fixedModel{probs: []float64{0.1, 0.6, 0.3}, width: wine.NumFeatures}
	p, err := New(identityScaler{wine.NumFeatures}, model, wine.Ternary, WithCache(2))
	require.NoError(t, err)

	first, err := p.Predict(wine.DefaultSample())
	require.NoError(t, err)
	first.Confidences[0].Percent = 99
	first.Advice[0] = "tampered"

	second, err := p.Predict(wine.DefaultSample())
	require.NoError(t, err)
	assert.Equal(t, 1, model.called)
	assert.InDelta(t, 10, second.Confidences[0].Percent, 1e-9)
	assert.Equal(t, wine.AdviceIncreaseAlcohol, second.Advice[0])

	_, err = p.Predict(goodSample())
	require.NoError(t, err)
	assert.Equal(t, 2, model.called)
}

func TestLoadTrainedArtifacts(t *testing.T) {
	features := [][]float64{
		wine.DefaultSample().Vector(),
		goodSample().Vector(),
	}
	labels := []int{0, 1}

	scaler := &ml.MinMaxScaler{}
	require.NoError(t, scaler.Fit(features))
	scaled, err := scaler.TransformAll(features)
	require.NoError(t, err)
	model := ml.NewDecisionTree(3, 2)
	require.NoError(t, model.Train(scaled, labels))

	dir := t.TempDir()
	scalerPath := filepath.Join(dir, "scaler.json")
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, ml.SaveScaler(scalerPath, scaler, wine.FeatureColumns()))
	require.NoError(t, ml.SaveModel(modelPath, ml.ModelArtifact{Model: model, Scheme: wine.Binary, Features: wine.FeatureColumns()}))

	p, artifact, err := Load(scalerPath, modelPath, WithCache(4))
	require.NoError(t, err)
	assert.Equal(t, ml.TypeDecisionTree, p.ModelType())
	assert.Equal(t, "binary", p.Scheme().Name())
	assert.Equal(t, wine.FeatureColumns(), artifact.Features)

	result, err := p.Predict(goodSample())
	require.NoError(t, err)
	assert.Equal(t, wine.Good, result.Label)
	assert.InDelta(t, 100, result.Top(), 1e-9)

	_, _, err = Load(filepath.Join(dir, "missing.json"), modelPath)
	assert.ErrorIs(t, err, ml.ErrArtifactLoad)
}
