// Package model fits, selects and persists the multi-class copy-number
// classifiers and their feature scalers.
package model

import (
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/exp/rand"

	"github.com/inodb/vibe-cnv/internal/dataset"
)

// Classifier is a probabilistic multi-class classifier over scaled
// feature vectors.
type Classifier interface {
	// Fit trains on X with class indices y into labels and per-row weights w.
	Fit(X [][]float64, y []int, w []float64, labels []dataset.Class, rng *rand.Rand) error
	// Labels returns the classes PredictProba is ordered by.
	Labels() []dataset.Class
	// PredictProba returns a probability per label, summing to 1.
	PredictProba(x []float64) []float64
}

func init() {
	gob.Register(&Softmax{})
	gob.Register(&Forest{})
}

// Kind names a classifier family.
type Kind string

const (
	KindSoftmax Kind = "LR"
	KindForest  Kind = "RF"
)

// ParseKind resolves a model identifier.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "lr", "softmax", "logistic":
		return KindSoftmax, nil
	case "rf", "rfc", "forest":
		return KindForest, nil
	}
	return "", fmt.Errorf("unsupported model %q (want LR or RF)", name)
}

// Params is one hyperparameter combination.
type Params map[string]float64

func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (p Params) get(key string, def float64) float64 {
	if v, ok := p[key]; ok && !math.IsNaN(v) {
		return v
	}
	return def
}

// New builds an untrained classifier of the given kind.
func New(kind Kind, p Params) (Classifier, error) {
	switch kind {
	case KindSoftmax:
		m := &Softmax{
			C:       p.get("C", 1),
			Degree:  int(p.get("degree", 1)),
			MaxIter: int(p.get("max_iter", 200)),
		}
		if m.C <= 0 || m.Degree < 1 || m.Degree > 2 {
			return nil, fmt.Errorf("invalid softmax parameters %s", p)
		}
		return m, nil
	case KindForest:
		f := &Forest{
			Trees:       int(p.get("n_estimators", 100)),
			MaxDepth:    int(p.get("max_depth", 0)),
			MinLeaf:     int(p.get("min_samples_leaf", 1)),
			MaxFeatures: int(p.get("max_features", 0)),
		}
		if f.Trees < 1 || f.MinLeaf < 1 || f.MaxDepth < 0 {
			return nil, fmt.Errorf("invalid forest parameters %s", p)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported model %q", kind)
}

// DefaultGrid returns the hyperparameter grid searched when none is
// configured.
func DefaultGrid(kind Kind) Grid {
	switch kind {
	case KindForest:
		return Grid{
			"n_estimators":     {50, 100},
			"max_depth":        {0, 8, 16},
			"min_samples_leaf": {1, 5},
		}
	default:
		return Grid{
			"C":      {0.1, 1, 10, 100},
			"degree": {1, 2},
		}
	}
}

// ClassWeights maps a class to its loss weight.
type ClassWeights map[dataset.Class]float64

// DefaultClassWeights up-weights normal and duplication rows.
func DefaultClassWeights() ClassWeights {
	return ClassWeights{-2: 1, -1: 1, 0: 1.8, 1: 1.6, 2: 1}
}

// SampleWeights returns the weight of each row's class; unlisted classes
// weigh 1.
func (cw ClassWeights) SampleWeights(y []dataset.Class) []float64 {
	w := make([]float64, len(y))
	for i, c := range y {
		if v, ok := cw[c]; ok {
			w[i] = v
		} else {
			w[i] = 1
		}
	}
	return w
}

// LabelSet returns the sorted distinct classes of y and y as indices
// into it.
func LabelSet(y []dataset.Class) ([]dataset.Class, []int) {
	seen := make(map[dataset.Class]bool)
	var labels []dataset.Class
	for _, c := range y {
		if !seen[c] {
			seen[c] = true
			labels = append(labels, c)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	pos := make(map[dataset.Class]int, len(labels))
	for i, c := range labels {
		pos[c] = i
	}
	idx := make([]int, len(y))
	for i, c := range y {
		idx[i] = pos[c]
	}
	return labels, idx
}

// Predict returns the most probable label, the first on ties.
func Predict(c Classifier, x []float64) (dataset.Class, []float64) {
	p := c.PredictProba(x)
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return c.Labels()[best], p
}
