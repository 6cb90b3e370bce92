package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"winequality/wine"
)

// ClassifierOptions carries the hyperparameters for NewClassifier.
type ClassifierOptions struct {
	MaxTreeDepth int
	Softmax      SoftmaxConfig
}

var classifierFactories = map[string]func(classes int, opts ClassifierOptions) Classifier{
	TypeSoftmax: func(classes int, opts ClassifierOptions) Classifier {
		return NewSoftmaxRegression(classes, opts.Softmax)
	},
	TypeDecisionTree: func(classes int, opts ClassifierOptions) Classifier {
		return NewDecisionTree(opts.MaxTreeDepth, classes)
	},
}

func NewClassifier(modelType string, classes int, opts ClassifierOptions) (Classifier, error) {
	factory, ok := classifierFactories[modelType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
	return factory(classes, opts), nil
}

func ModelTypes() []string {
	types := make([]string, 0, len(classifierFactories))
	for t := range classifierFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ModelArtifact is a fitted classifier together with the label enumeration
// and feature order it was trained with.
type ModelArtifact struct {
	Model     Classifier
	Scheme    wine.Scheme
	Features  []string
	TrainedAt time.Time
}

type modelFile struct {
	Type      string          `json:"type"`
	Scheme    string          `json:"scheme"`
	Labels    []string        `json:"labels"`
	Features  []string        `json:"features"`
	TrainedAt time.Time       `json:"trained_at"`
	Params    json.RawMessage `json:"params"`
}

type scalerFile struct {
	Type     string          `json:"type"`
	Features []string        `json:"features"`
	Params   json.RawMessage `json:"params"`
}

func SaveModel(path string, artifact ModelArtifact) error {
	if artifact.Model == nil {
		return errors.New("model is nil")
	}
	if artifact.Model.NumClasses() != artifact.Scheme.Size() {
		return fmt.Errorf("model has %d classes but %s scheme has %d labels",
			artifact.Model.NumClasses(), artifact.Scheme.Name(), artifact.Scheme.Size())
	}
	params, err := json.Marshal(artifact.Model)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", artifact.Model.Type(), err)
	}
	trainedAt := artifact.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = time.Now().UTC()
	}
	return writeJSON(path, modelFile{
		Type:      artifact.Model.Type(),
		Scheme:    artifact.Scheme.Name(),
		Labels:    artifact.Scheme.LabelStrings(),
		Features:  artifact.Features,
		TrainedAt: trainedAt,
		Params:    params,
	})
}

func LoadModel(path string) (*ModelArtifact, error) {
	var file modelFile
	if err := readJSON(path, &file); err != nil {
		return nil, err
	}
	factory, ok := classifierFactories[file.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactLoad, path, fmt.Errorf("%w: %q", ErrUnsupportedModel, file.Type))
	}
	scheme, err := wine.SchemeFromLabels(file.Labels)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactLoad, path, err)
	}
	model := factory(scheme.Size(), ClassifierOptions{})
	if err := json.Unmarshal(file.Params, model); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactLoad, path, err)
	}
	if model.NumClasses() != scheme.Size() {
		return nil, fmt.Errorf("%w: %s: model has %d classes, labels list %d", ErrArtifactLoad, path, model.NumClasses(), scheme.Size())
	}
	if len(file.Features) != 0 && len(file.Features) != model.NumFeatures() {
		return nil, fmt.Errorf("%w: %s: %d feature names for %d model inputs", ErrArtifactLoad, path, len(file.Features), model.NumFeatures())
	}
	return &ModelArtifact{
		Model:     model,
		Scheme:    scheme,
		Features:  file.Features,
		TrainedAt: file.TrainedAt,
	}, nil
}

func SaveScaler(path string, scaler *MinMaxScaler, features []string) error {
	if err := scaler.validate(); err != nil {
		return err
	}
	params, err := json.Marshal(scaler)
	if err != nil {
		return err
	}
	return writeJSON(path, scalerFile{Type: TypeMinMax, Features: features, Params: params})
}

func LoadScaler(path string) (*MinMaxScaler, []string, error) {
	var file scalerFile
	if err := readJSON(path, &file); err != nil {
		return nil, nil, err
	}
	if file.Type != TypeMinMax {
		return nil, nil, fmt.Errorf("%w: %s: unsupported scaler type %q", ErrArtifactLoad, path, file.Type)
	}
	scaler := &MinMaxScaler{}
	if err := json.Unmarshal(file.Params, scaler); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrArtifactLoad, path, err)
	}
	if err := scaler.validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrArtifactLoad, path, err)
	}
	return scaler, file.Features, nil
}

func writeJSON(path string, v interface{}) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, payload, 0o644)
}

func readJSON(path string, v interface{}) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArtifactLoad, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrArtifactLoad, path, err)
	}
	return nil
}
