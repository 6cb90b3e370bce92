package wine

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NumFeatures is the length of every Sample vector.
const NumFeatures = 11

var (
	ErrOutOfRange = errors.New("feature out of range")
	ErrNonFinite  = errors.New("feature is not a finite number")
)

// FeatureSpec describes one slider of the input form.
type FeatureSpec struct {
	Key     string  `json:"key"`
	Column  string  `json:"column"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step"`
}

// Title is the human label shown next to the slider. A Caser holds state,
// so one is built per call.
func (f FeatureSpec) Title() string {
	if f.Column == "pH" {
		return "pH"
	}
	return cases.Title(language.English).String(f.Column)
}

// Order matters: scalers and classifiers are fitted on vectors in this order.
var features = [NumFeatures]FeatureSpec{
	{Key: "fixed_acidity", Column: "fixed acidity", Min: 4.0, Max: 16.0, Default: 7.0, Step: 0.1},
	{Key: "volatile_acidity", Column: "volatile acidity", Min: 0.1, Max: 1.6, Default: 0.7, Step: 0.01},
	{Key: "citric_acid", Column: "citric acid", Min: 0.0, Max: 1.0, Default: 0.3, Step: 0.01},
	{Key: "residual_sugar", Column: "residual sugar", Min: 0.5, Max: 15.0, Default: 2.0, Step: 0.1},
	{Key: "chlorides", Column: "chlorides", Min: 0.01, Max: 0.3, Default: 0.08, Step: 0.001},
	{Key: "free_sulfur_dioxide", Column: "free sulfur dioxide", Min: 1.0, Max: 75.0, Default: 15.0, Step: 1},
	{Key: "total_sulfur_dioxide", Column: "total sulfur dioxide", Min: 6.0, Max: 300.0, Default: 46.0, Step: 1},
	{Key: "density", Column: "density", Min: 0.990, Max: 1.005, Default: 0.997, Step: 0.0001},
	{Key: "ph", Column: "pH", Min: 2.5, Max: 4.0, Default: 3.3, Step: 0.01},
	{Key: "sulphates", Column: "sulphates", Min: 0.3, Max: 2.0, Default: 0.6, Step: 0.01},
	{Key: "alcohol", Column: "alcohol", Min: 8.0, Max: 15.0, Default: 10.0, Step: 0.1},
}

func Features() []FeatureSpec {
	out := make([]FeatureSpec, NumFeatures)
	copy(out, features[:])
	return out
}

func FeatureColumns() []string {
	names := make([]string, NumFeatures)
	for i, f := range features {
		names[i] = f.Column
	}
	return names
}

// Sample is one wine's measurements. It is comparable and can be used as a map key.
type Sample struct {
	FixedAcidity       float64 `json:"fixed_acidity"`
	VolatileAcidity    float64 `json:"volatile_acidity"`
	CitricAcid         float64 `json:"citric_acid"`
	ResidualSugar      float64 `json:"residual_sugar"`
	Chlorides          float64 `json:"chlorides"`
	FreeSulfurDioxide  float64 `json:"free_sulfur_dioxide"`
	TotalSulfurDioxide float64 `json:"total_sulfur_dioxide"`
	Density            float64 `json:"density"`
	PH                 float64 `json:"ph"`
	Sulphates          float64 `json:"sulphates"`
	Alcohol            float64 `json:"alcohol"`
}

func DefaultSample() Sample {
	s, _ := SampleFromVector(defaultVector())
	return s
}

func defaultVector() []float64 {
	v := make([]float64, NumFeatures)
	for i, f := range features {
		v[i] = f.Default
	}
	return v
}

// Vector returns the features in training order.
func (s Sample) Vector() []float64 {
	return []float64{
		s.FixedAcidity,
		s.VolatileAcidity,
		s.CitricAcid,
		s.ResidualSugar,
		s.Chlorides,
		s.FreeSulfurDioxide,
		s.TotalSulfurDioxide,
		s.Density,
		s.PH,
		s.Sulphates,
		s.Alcohol,
	}
}

func SampleFromVector(v []float64) (Sample, error) {
	if len(v) != NumFeatures {
		return Sample{}, fmt.Errorf("sample needs %d features, got %d", NumFeatures, len(v))
	}
	return Sample{
		FixedAcidity:       v[0],
		VolatileAcidity:    v[1],
		CitricAcid:         v[2],
		ResidualSugar:      v[3],
		Chlorides:          v[4],
		FreeSulfurDioxide:  v[5],
		TotalSulfurDioxide: v[6],
		Density:            v[7],
		PH:                 v[8],
		Sulphates:          v[9],
		Alcohol:            v[10],
	}, nil
}

// CheckFinite reports every feature that is NaN or infinite. It applies even
// when out-of-range values are allowed.
func (s Sample) CheckFinite() error {
	var err error
	for i, value := range s.Vector() {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: %s=%g", ErrNonFinite, features[i].Column, value))
		}
	}
	return err
}

// Validate reports every feature that is not finite or falls outside its
// slider range.
func (s Sample) Validate() error {
	if err := s.CheckFinite(); err != nil {
		return err
	}
	var err error
	for i, value := range s.Vector() {
		f := features[i]
		if value < f.Min || value > f.Max {
			err = multierr.Append(err, fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfRange, f.Column, value, f.Min, f.Max))
		}
	}
	return err
}
