package ml

import "errors"

var (
	ErrArtifactLoad     = errors.New("artifact load failed")
	ErrShapeMismatch    = errors.New("feature count mismatch")
	ErrNotTrained       = errors.New("model not trained")
	ErrUnsupportedModel = errors.New("unsupported model type")
)

// Transformer maps a raw feature vector to the space a Classifier was trained in.
type Transformer interface {
	Transform(features []float64) ([]float64, error)
	NumFeatures() int
}

// Classifier is any fitted model that yields a class index and per-class
// probabilities. Implementations are read-only after Train.
type Classifier interface {
	Type() string
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, error)
	PredictProba(features []float64) ([]float64, error)
	NumClasses() int
	NumFeatures() int
}

func checkTrainingSet(features [][]float64, labels []int, classes int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return 0, errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return 0, errors.New("feature vectors are empty")
	}
	for _, row := range features {
		if len(row) != width {
			return 0, ErrShapeMismatch
		}
	}
	for _, label := range labels {
		if label < 0 || label >= classes {
			return 0, errors.New("label outside class range")
		}
	}
	return width, nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
