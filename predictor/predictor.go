// Package predictor turns one wine sample into a quality label, per-label
// confidences and advisory text using a fitted scaler and classifier.
package predictor

import (
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"winequality/ml"
	"winequality/wine"
)

// ErrInvalidProbabilities is returned when the classifier output cannot be
// turned into percentages.
var ErrInvalidProbabilities = errors.New("invalid class probabilities")

type Confidence struct {
	Label   wine.Label `json:"label"`
	Percent float64    `json:"percent"`
}

type Result struct {
	Label       wine.Label   `json:"label"`
	Index       int          `json:"index"`
	Confidences []Confidence `json:"confidences"`
	Advice      []string     `json:"advice"`
}

// Percentages returns the confidences keyed by label.
func (r Result) Percentages() map[wine.Label]float64 {
	out := make(map[wine.Label]float64, len(r.Confidences))
	for _, c := range r.Confidences {
		out[c.Label] = c.Percent
	}
	return out
}

// Top is the confidence of the predicted label.
func (r Result) Top() float64 {
	if r.Index < 0 || r.Index >= len(r.Confidences) {
		return 0
	}
	return r.Confidences[r.Index].Percent
}

func (r Result) clone() Result {
	out := r
	out.Confidences = append([]Confidence(nil), r.Confidences...)
	out.Advice = append([]string(nil), r.Advice...)
	return out
}

type Option func(*Predictor) error

// WithCache memoizes up to size results keyed by the exact sample.
func WithCache(size int) Option {
	return func(p *Predictor) error {
		if size <= 0 {
			return nil
		}
		cache, err := lru.New[wine.Sample, Result](size)
		if err != nil {
			return err
		}
		p.cache = cache
		return nil
	}
}

// Predictor is safe for concurrent use. The artifacts are never written
// after construction.
type Predictor struct {
	scaler ml.Transformer
	model  ml.Classifier
	scheme wine.Scheme
	cache  *lru.Cache[wine.Sample, Result]
}

func New(scaler ml.Transformer, model ml.Classifier, scheme wine.Scheme, opts ...Option) (*Predictor, error) {
	if scaler == nil || model == nil {
		return nil, fmt.Errorf("%w: scaler and model are required", ml.ErrNotTrained)
	}
	if scaler.NumFeatures() != model.NumFeatures() {
		return nil, fmt.Errorf("%w: scaler has %d features, model expects %d",
			ml.ErrShapeMismatch, scaler.NumFeatures(), model.NumFeatures())
	}
	if model.NumClasses() != scheme.Size() {
		return nil, fmt.Errorf("model has %d classes but %s scheme has %d labels",
			model.NumClasses(), scheme.Name(), scheme.Size())
	}
	p := &Predictor{scaler: scaler, model: model, scheme: scheme}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Load reads both artifacts from disk and builds a Predictor from them.
func Load(scalerPath, modelPath string, opts ...Option) (*Predictor, *ml.ModelArtifact, error) {
	scaler, _, err := ml.LoadScaler(scalerPath)
	if err != nil {
		return nil, nil, err
	}
	artifact, err := ml.LoadModel(modelPath)
	if err != nil {
		return nil, nil, err
	}
	p, err := New(scaler, artifact.Model, artifact.Scheme, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ml.ErrArtifactLoad, err)
	}
	return p, artifact, nil
}

func (p *Predictor) Scheme() wine.Scheme { return p.scheme }

func (p *Predictor) ModelType() string { return p.model.Type() }

func (p *Predictor) Predict(s wine.Sample) (Result, error) {
	if err := s.CheckFinite(); err != nil {
		return Result{}, err
	}
	if p.cache != nil {
		if cached, ok := p.cache.Get(s); ok {
			return cached.clone(), nil
		}
	}

	scaled, err := p.scaler.Transform(s.Vector())
	if err != nil {
		return Result{}, fmt.Errorf("scale sample: %w", err)
	}
	probs, err := p.model.PredictProba(scaled)
	if err != nil {
		return Result{}, fmt.Errorf("classify sample: %w", err)
	}
	if len(probs) != p.scheme.Size() {
		return Result{}, fmt.Errorf("%w: classifier returned %d probabilities for %d labels",
			ml.ErrShapeMismatch, len(probs), p.scheme.Size())
	}
	confidences, err := percentages(p.scheme.Labels(), probs)
	if err != nil {
		return Result{}, err
	}

	index := 0
	for i, v := range probs {
		if v > probs[index] {
			index = i
		}
	}
	label, err := p.scheme.Label(index)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Label:       label,
		Index:       index,
		Confidences: confidences,
		Advice:      wine.Advise(s),
	}
	if p.cache != nil {
		p.cache.Add(s, result.clone())
	}
	return result, nil
}

// percentages rescales probabilities so they sum to exactly 100. Negative or
// non-finite entries and a zero total are rejected.
func percentages(labels []wine.Label, probs []float64) ([]Confidence, error) {
	var total float64
	for i, v := range probs {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: %s=%g", ErrInvalidProbabilities, labels[i], v)
		}
		total += v
	}
	if total <= 0 || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total %g", ErrInvalidProbabilities, total)
	}
	out := make([]Confidence, len(labels))
	for i, l := range labels {
		out[i] = Confidence{Label: l, Percent: probs[i] / total * 100}
	}
	return out, nil
}
