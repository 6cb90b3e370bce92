package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

const TypeDecisionTree = "decision_tree"

type DecisionTree struct {
	maxDepth int
	classes  int
	features int
	nodes    []TreeNode
}

// TreeNode is one entry of the flattened tree. ClassLabel and Probabilities
// are only meaningful on leaves.
type TreeNode struct {
	FeatureIdx    int       `json:"feature_idx"`
	Threshold     float64   `json:"threshold"`
	LeftChild     int       `json:"left_child"`
	RightChild    int       `json:"right_child"`
	ClassLabel    int       `json:"class_label"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	IsLeaf        bool      `json:"is_leaf"`
}

func NewDecisionTree(maxDepth, classes int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &DecisionTree{maxDepth: maxDepth, classes: classes}
}

func (dt *DecisionTree) Type() string { return TypeDecisionTree }

func (dt *DecisionTree) NumClasses() int { return dt.classes }

func (dt *DecisionTree) NumFeatures() int { return dt.features }

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if dt.classes < 2 {
		return errors.New("decision tree needs at least two classes")
	}
	width, err := checkTrainingSet(features, labels, dt.classes)
	if err != nil {
		return err
	}
	if dt.maxDepth <= 0 {
		dt.maxDepth = 3
	}

	dt.features = width
	dt.nodes = dt.buildNode(features, labels, 0)
	return nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), leaf.Probabilities...), nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	return leaf.ClassLabel, nil
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, ErrNotTrained
	}
	if len(features) != dt.features {
		return TreeNode{}, fmt.Errorf("%w: classifier expects %d features, got %d", ErrShapeMismatch, dt.features, len(features))
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
}

type treeParams struct {
	MaxDepth int        `json:"max_depth"`
	Classes  int        `json:"classes"`
	Features int        `json:"features"`
	Nodes    []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(treeParams{
		MaxDepth: dt.maxDepth,
		Classes:  dt.classes,
		Features: dt.features,
		Nodes:    dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var p treeParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if len(p.Nodes) == 0 {
		return errors.New("decision tree has no nodes")
	}
	for i, node := range p.Nodes {
		if node.IsLeaf && len(node.Probabilities) != p.Classes {
			return fmt.Errorf("leaf %d has %d probabilities, want %d", i, len(node.Probabilities), p.Classes)
		}
	}
	dt.maxDepth = p.MaxDepth
	dt.classes = p.Classes
	dt.features = p.Features
	dt.nodes = p.Nodes
	return nil
}

func (dt *DecisionTree) newLeaf(labels []int) []TreeNode {
	probs := distribution(labels, dt.classes)
	return []TreeNode{{
		FeatureIdx:    -1,
		LeftChild:     -1,
		RightChild:    -1,
		ClassLabel:    argmax(probs),
		Probabilities: probs,
		IsLeaf:        true,
	}}
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int) []TreeNode {
	if depth >= dt.maxDepth || isPure(labels) {
		return dt.newLeaf(labels)
	}

	bestFeature, threshold, ok := findBestSplit(features, labels)
	if !ok {
		return dt.newLeaf(labels)
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return dt.newLeaf(labels)
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		IsLeaf:     false,
	}

	// Children are laid out after the root, so their indexes shift.
	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

func offsetChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func distribution(labels []int, classes int) []float64 {
	probs := make([]float64, classes)
	if len(labels) == 0 {
		for i := range probs {
			probs[i] = 1 / float64(classes)
		}
		return probs
	}
	for _, label := range labels {
		probs[label]++
	}
	for i := range probs {
		probs[i] /= float64(len(labels))
	}
	return probs
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
