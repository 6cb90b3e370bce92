package ml

import (
	"errors"
	"math"
	"math/rand"
)

const (
	DefaultTestRatio = 0.2
	DefaultSeed      = 42
)

type Dataset struct {
	Features [][]float64
	Labels   []int
}

func (d Dataset) Len() int { return len(d.Labels) }

// Split shuffles with a seeded source and holds out ceil(n*testRatio) rows,
// so the same seed always yields the same partition.
func Split(features [][]float64, labels []int, testRatio float64, seed int64) (train, test Dataset, err error) {
	if len(features) != len(labels) {
		return Dataset{}, Dataset{}, errors.New("features and labels size mismatch")
	}
	if len(features) < 2 {
		return Dataset{}, Dataset{}, errors.New("need at least two rows to split")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = DefaultTestRatio
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(features))

	testSize := int(math.Ceil(float64(len(features)) * testRatio))
	if testSize >= len(features) {
		testSize = len(features) - 1
	}
	split := len(features) - testSize
	for i, idx := range indices {
		if i < split {
			train.Features = append(train.Features, features[idx])
			train.Labels = append(train.Labels, labels[idx])
		} else {
			test.Features = append(test.Features, features[idx])
			test.Labels = append(test.Labels, labels[idx])
		}
	}
	return train, test, nil
}

type Evaluation struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Samples   int     `json:"samples"`
	// Confusion[actual][predicted]
	Confusion [][]int `json:"confusion"`
}

// Evaluate reports accuracy plus macro-averaged precision and recall over
// every class that occurs in either the labels or the predictions.
func Evaluate(model Classifier, features [][]float64, labels []int) (Evaluation, error) {
	classes := model.NumClasses()
	eval := Evaluation{Samples: len(features), Confusion: make([][]int, classes)}
	for i := range eval.Confusion {
		eval.Confusion[i] = make([]int, classes)
	}
	if len(features) == 0 {
		return eval, nil
	}
	if len(features) != len(labels) {
		return eval, errors.New("features and labels size mismatch")
	}

	correct := 0
	for i, feature := range features {
		predicted, err := model.Predict(feature)
		if err != nil {
			return eval, err
		}
		if labels[i] < 0 || labels[i] >= classes {
			return eval, errors.New("label outside class range")
		}
		eval.Confusion[labels[i]][predicted]++
		if predicted == labels[i] {
			correct++
		}
	}
	eval.Accuracy = float64(correct) / float64(len(features))

	var precisionSum, recallSum float64
	seen := 0
	for c := 0; c < classes; c++ {
		truePositive := eval.Confusion[c][c]
		actual, predicted := 0, 0
		for k := 0; k < classes; k++ {
			actual += eval.Confusion[c][k]
			predicted += eval.Confusion[k][c]
		}
		if actual == 0 && predicted == 0 {
			continue
		}
		seen++
		if predicted > 0 {
			precisionSum += float64(truePositive) / float64(predicted)
		}
		if actual > 0 {
			recallSum += float64(truePositive) / float64(actual)
		}
	}
	if seen > 0 {
		eval.Precision = precisionSum / float64(seen)
		eval.Recall = recallSum / float64(seen)
	}
	return eval, nil
}
