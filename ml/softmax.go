package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const TypeSoftmax = "softmax"

type SoftmaxConfig struct {
	Iterations   int
	LearningRate float64
	L2           float64
}

func DefaultSoftmaxConfig() SoftmaxConfig {
	return SoftmaxConfig{
		Iterations:   2000,
		LearningRate: 0.5,
		L2:           1e-4,
	}
}

// SoftmaxRegression is multinomial logistic regression fitted with
// full-batch gradient descent from a zero start, so training is deterministic.
type SoftmaxRegression struct {
	config   SoftmaxConfig
	classes  int
	features int
	// weights is (features+1) x classes; row 0 holds the bias.
	weights *mat.Dense
}

func NewSoftmaxRegression(classes int, config SoftmaxConfig) *SoftmaxRegression {
	defaults := DefaultSoftmaxConfig()
	if config.Iterations <= 0 {
		config.Iterations = defaults.Iterations
	}
	if config.LearningRate <= 0 {
		config.LearningRate = defaults.LearningRate
	}
	if config.L2 < 0 {
		config.L2 = 0
	}
	return &SoftmaxRegression{config: config, classes: classes}
}

func (m *SoftmaxRegression) Type() string { return TypeSoftmax }

func (m *SoftmaxRegression) NumClasses() int { return m.classes }

func (m *SoftmaxRegression) NumFeatures() int { return m.features }

func (m *SoftmaxRegression) Train(features [][]float64, labels []int) error {
	if m.classes < 2 {
		return errors.New("softmax needs at least two classes")
	}
	width, err := checkTrainingSet(features, labels, m.classes)
	if err != nil {
		return err
	}
	n := len(features)

	design := mat.NewDense(n, width+1, nil)
	target := mat.NewDense(n, m.classes, nil)
	for i, row := range features {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
		target.Set(i, labels[i], 1)
	}

	weights := mat.NewDense(width+1, m.classes, nil)
	var scores, grad, reg mat.Dense
	zeroRow := make([]float64, m.classes)
	for it := 0; it < m.config.Iterations; it++ {
		scores.Mul(design, weights)
		softmaxRows(&scores)
		scores.Sub(&scores, target)

		grad.Mul(design.T(), &scores)
		grad.Scale(1/float64(n), &grad)
		if m.config.L2 > 0 {
			reg.Scale(m.config.L2, weights)
			reg.SetRow(0, zeroRow)
			grad.Add(&grad, &reg)
		}
		grad.Scale(m.config.LearningRate, &grad)
		weights.Sub(weights, &grad)
	}

	m.features = width
	m.weights = weights
	return nil
}

func (m *SoftmaxRegression) PredictProba(features []float64) ([]float64, error) {
	if m.weights == nil {
		return nil, ErrNotTrained
	}
	if len(features) != m.features {
		return nil, fmt.Errorf("%w: classifier expects %d features, got %d", ErrShapeMismatch, m.features, len(features))
	}
	x := mat.NewVecDense(m.features+1, append([]float64{1}, features...))
	var z mat.VecDense
	z.MulVec(m.weights.T(), x)
	probs := make([]float64, m.classes)
	for j := range probs {
		probs[j] = z.AtVec(j)
	}
	softmax(probs)
	return probs, nil
}

func (m *SoftmaxRegression) Predict(features []float64) (int, error) {
	probs, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(probs), nil
}

func softmaxRows(scores *mat.Dense) {
	rows, _ := scores.Dims()
	for i := 0; i < rows; i++ {
		softmax(scores.RawRowView(i))
	}
}

// softmax works in place and subtracts the max first to stay finite.
func softmax(values []float64) {
	peak := values[argmax(values)]
	sum := 0.0
	for i, v := range values {
		values[i] = math.Exp(v - peak)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
}

type softmaxParams struct {
	Classes      int         `json:"classes"`
	Features     int         `json:"features"`
	Iterations   int         `json:"iterations"`
	LearningRate float64     `json:"learning_rate"`
	L2           float64     `json:"l2"`
	Weights      [][]float64 `json:"weights"`
}

func (m *SoftmaxRegression) MarshalJSON() ([]byte, error) {
	if m.weights == nil {
		return nil, ErrNotTrained
	}
	rows, _ := m.weights.Dims()
	weights := make([][]float64, rows)
	for i := range weights {
		weights[i] = mat.Row(nil, i, m.weights)
	}
	return json.Marshal(softmaxParams{
		Classes:      m.classes,
		Features:     m.features,
		Iterations:   m.config.Iterations,
		LearningRate: m.config.LearningRate,
		L2:           m.config.L2,
		Weights:      weights,
	})
}

func (m *SoftmaxRegression) UnmarshalJSON(data []byte) error {
	var p softmaxParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Classes < 2 || p.Features <= 0 {
		return errors.New("softmax params missing shape")
	}
	if len(p.Weights) != p.Features+1 {
		return fmt.Errorf("softmax weights have %d rows, want %d", len(p.Weights), p.Features+1)
	}
	flat := make([]float64, 0, (p.Features+1)*p.Classes)
	for i, row := range p.Weights {
		if len(row) != p.Classes {
			return fmt.Errorf("softmax weight row %d has %d columns, want %d", i, len(row), p.Classes)
		}
		flat = append(flat, row...)
	}
	m.config = SoftmaxConfig{Iterations: p.Iterations, LearningRate: p.LearningRate, L2: p.L2}
	m.classes = p.Classes
	m.features = p.Features
	m.weights = mat.NewDense(p.Features+1, p.Classes, flat)
	return nil
}
