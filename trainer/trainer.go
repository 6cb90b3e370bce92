// Package trainer fits the scaler and classifier from a labelled dataset and
// writes both artifacts.
package trainer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"winequality/dataset"
	"winequality/ml"
	"winequality/wine"
)

// roundTripTolerance bounds how far a reloaded artifact may drift from the
// in-memory model on the held-out rows.
const roundTripTolerance = 1e-9

var ErrRoundTrip = errors.New("reloaded artifacts disagree with trained model")

type Config struct {
	Dataset    string
	ScalerPath string
	ModelPath  string
	Scheme     wine.Scheme
	ModelType  string
	TestRatio  float64
	Seed       int64
	Classifier ml.ClassifierOptions
}

type Report struct {
	ModelType   string             `json:"model_type"`
	Scheme      string             `json:"scheme"`
	Rows        int                `json:"rows"`
	TrainRows   int                `json:"train_rows"`
	TestRows    int                `json:"test_rows"`
	LabelCounts map[wine.Label]int `json:"label_counts"`
	Evaluation  ml.Evaluation      `json:"evaluation"`
	ScalerPath  string             `json:"scaler_path"`
	ModelPath   string             `json:"model_path"`
	TrainedAt   time.Time          `json:"trained_at"`
	Duration    time.Duration      `json:"duration"`
}

// Fitted holds the in-memory artifacts and the held-out partition they were
// evaluated on.
type Fitted struct {
	Scaler *ml.MinMaxScaler
	Model  ml.Classifier
	Test   ml.Dataset
}

type Trainer struct {
	config Config
	logger *zap.Logger
}

func New(config Config, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ModelType == "" {
		config.ModelType = ml.TypeSoftmax
	}
	if config.Scheme.Size() == 0 {
		config.Scheme = wine.Ternary
	}
	if config.TestRatio <= 0 || config.TestRatio >= 1 {
		config.TestRatio = ml.DefaultTestRatio
	}
	return &Trainer{config: config, logger: logger}
}

// Run loads the dataset, fits, evaluates, saves and verifies. Any failure
// aborts the run.
func (t *Trainer) Run() (*Report, error) {
	start := time.Now()
	rows, err := dataset.Load(t.config.Dataset)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	t.logger.Info("dataset loaded", zap.String("path", t.config.Dataset), zap.Int("rows", len(rows)))

	fitted, err := t.Fit(rows)
	if err != nil {
		return nil, err
	}

	eval, err := ml.Evaluate(fitted.Model, fitted.Test.Features, fitted.Test.Labels)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	t.logger.Info("model evaluated",
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("precision", eval.Precision),
		zap.Float64("recall", eval.Recall),
		zap.Int("test_rows", eval.Samples),
	)

	trainedAt := time.Now().UTC()
	if err := t.Save(fitted, trainedAt); err != nil {
		return nil, err
	}
	if err := t.VerifyRoundTrip(fitted); err != nil {
		return nil, err
	}

	return &Report{
		ModelType:   fitted.Model.Type(),
		Scheme:      t.config.Scheme.Name(),
		Rows:        len(rows),
		TrainRows:   len(rows) - fitted.Test.Len(),
		TestRows:    fitted.Test.Len(),
		LabelCounts: rows.LabelCounts(t.config.Scheme),
		Evaluation:  eval,
		ScalerPath:  t.config.ScalerPath,
		ModelPath:   t.config.ModelPath,
		TrainedAt:   trainedAt,
		Duration:    time.Since(start),
	}, nil
}

// Fit splits rows, fits the scaler on the training partition only and the
// classifier on the scaled training features. The returned test partition
// is already scaled.
func (t *Trainer) Fit(rows dataset.Rows) (*Fitted, error) {
	features := rows.Matrix()
	labels := rows.Labels(t.config.Scheme)

	train, test, err := ml.Split(features, labels, t.config.TestRatio, t.config.Seed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	scaler := &ml.MinMaxScaler{}
	if err := scaler.Fit(train.Features); err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	trainScaled, err := scaler.TransformAll(train.Features)
	if err != nil {
		return nil, fmt.Errorf("scale train: %w", err)
	}
	testScaled, err := scaler.TransformAll(test.Features)
	if err != nil {
		return nil, fmt.Errorf("scale test: %w", err)
	}

	model, err := ml.NewClassifier(t.config.ModelType, t.config.Scheme.Size(), t.config.Classifier)
	if err != nil {
		return nil, err
	}
	if err := model.Train(trainScaled, train.Labels); err != nil {
		return nil, fmt.Errorf("train %s: %w", model.Type(), err)
	}
	t.logger.Info("model trained",
		zap.String("model", model.Type()),
		zap.String("scheme", t.config.Scheme.Name()),
		zap.Int("train_rows", train.Len()),
	)

	return &Fitted{
		Scaler: scaler,
		Model:  model,
		Test:   ml.Dataset{Features: testScaled, Labels: test.Labels},
	}, nil
}

func (t *Trainer) Save(fitted *Fitted, trainedAt time.Time) error {
	columns := wine.FeatureColumns()
	if err := ml.SaveScaler(t.config.ScalerPath, fitted.Scaler, columns); err != nil {
		return fmt.Errorf("save scaler: %w", err)
	}
	artifact := ml.ModelArtifact{
		Model:     fitted.Model,
		Scheme:    t.config.Scheme,
		Features:  columns,
		TrainedAt: trainedAt,
	}
	if err := ml.SaveModel(t.config.ModelPath, artifact); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	t.logger.Info("artifacts saved",
		zap.String("scaler", t.config.ScalerPath),
		zap.String("model", t.config.ModelPath),
	)
	return nil
}

// VerifyRoundTrip reloads both artifacts from disk and checks that they
// reproduce the in-memory predictions on the held-out rows.
func (t *Trainer) VerifyRoundTrip(fitted *Fitted) error {
	scaler, _, err := ml.LoadScaler(t.config.ScalerPath)
	if err != nil {
		return err
	}
	artifact, err := ml.LoadModel(t.config.ModelPath)
	if err != nil {
		return err
	}
	if scaler.NumFeatures() != fitted.Scaler.NumFeatures() {
		return fmt.Errorf("%w: scaler width %d != %d", ErrRoundTrip, scaler.NumFeatures(), fitted.Scaler.NumFeatures())
	}
	for i := range fitted.Scaler.Min {
		if scaler.Min[i] != fitted.Scaler.Min[i] || scaler.Max[i] != fitted.Scaler.Max[i] {
			return fmt.Errorf("%w: scaler column %d", ErrRoundTrip, i)
		}
	}
	for i, row := range fitted.Test.Features {
		want, err := fitted.Model.PredictProba(row)
		if err != nil {
			return err
		}
		got, err := artifact.Model.PredictProba(row)
		if err != nil {
			return err
		}
		for j := range want {
			if math.Abs(want[j]-got[j]) > roundTripTolerance {
				return fmt.Errorf("%w: test row %d class %d: %g != %g", ErrRoundTrip, i, j, want[j], got[j])
			}
		}
	}
	return nil
}
