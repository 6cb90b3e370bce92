package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const TypeMinMax = "minmax"

// MinMaxScaler rescales each column to [0, 1] using the range seen in Fit.
// Values outside the fitted range map outside [0, 1]; nothing is clipped.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

func (s *MinMaxScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	data := make([]float64, 0, len(features)*width)
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), width)
		}
		data = append(data, row...)
	}
	m := mat.NewDense(len(features), width, data)

	mins := make([]float64, width)
	maxs := make([]float64, width)
	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		mat.Col(column, j, m)
		mins[j] = floats.Min(column)
		maxs[j] = floats.Max(column)
	}
	s.Min = mins
	s.Max = maxs
	return nil
}

func (s *MinMaxScaler) NumFeatures() int {
	return len(s.Min)
}

func (s *MinMaxScaler) Transform(values []float64) ([]float64, error) {
	if len(s.Min) == 0 {
		return nil, ErrNotTrained
	}
	if len(values) != len(s.Min) {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", ErrShapeMismatch, len(s.Min), len(values))
	}
	result := make([]float64, len(values))
	for i := range values {
		result[i] = NormalizeFeature(values[i], s.Min[i], s.Max[i])
	}
	return result, nil
}

// TransformAll scales every row, failing on the first mismatched one.
func (s *MinMaxScaler) TransformAll(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, row := range features {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// NormalizeFeature treats a constant column as having unit range.
func NormalizeFeature(value, min, max float64) float64 {
	scale := max - min
	if scale == 0 {
		scale = 1
	}
	return (value - min) / scale
}

func (s *MinMaxScaler) validate() error {
	if len(s.Min) == 0 || len(s.Min) != len(s.Max) {
		return errors.New("scaler min/max length mismatch")
	}
	return nil
}
