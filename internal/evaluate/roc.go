package evaluate

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/inodb/vibe-cnv/internal/dataset"
)

// OneVsAll returns, for every row, a score for class c derived from a
// multi-class probability vector: P(c) when c is the argmax, otherwise
// 1-P(argmax). The model is not calibrated one-vs-rest, so this is an
// approximation of the probability that the row is of class c.
func OneVsAll(labels []dataset.Class, proba [][]float64, c dataset.Class) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		best := Argmax(p)
		if best >= 0 && labels[best] == c {
			out[i] = p[best]
		} else if best >= 0 {
			out[i] = 1 - p[best]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Argmax returns the index of the largest finite value, the first on ties,
// or -1 if there is none.
func Argmax(p []float64) int {
	best := -1
	for i, v := range p {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > p[best] {
			best = i
		}
	}
	return best
}

// ROC is a one-vs-all receiver operating characteristic curve.
type ROC struct {
	Class      dataset.Class
	FPR, TPR   []float64
	Thresholds []float64
	// AUC is NaN when the class has no positive or no negative rows.
	AUC float64
}

// ComputeROC builds the ROC curve of class c from per-row scores.
func ComputeROC(truth []dataset.Class, scores []float64, c dataset.Class) ROC {
	y := make([]float64, 0, len(scores))
	classes := make([]bool, 0, len(scores))
	var pos, neg int
	for i, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		y = append(y, s)
		isPos := truth[i] == c
		classes = append(classes, isPos)
		if isPos {
			pos++
		} else {
			neg++
		}
	}
	roc := ROC{Class: c, AUC: math.NaN()}
	if pos == 0 || neg == 0 {
		return roc
	}
	stat.SortWeightedLabeled(y, classes, nil)
	roc.TPR, roc.FPR, roc.Thresholds = stat.ROC(nil, y, classes, nil)
	roc.AUC = integrate.Trapezoidal(roc.FPR, roc.TPR)
	return roc
}
