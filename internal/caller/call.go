// Package caller applies a trained copy-number model to per-sample feature
// tables and writes one call per exon.
package caller

import (
	"fmt"
	"math"

	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/evaluate"
	"github.com/inodb/vibe-cnv/internal/model"
)

// Predictor scores one feature vector.
type Predictor interface {
	Labels() []dataset.Class
	Predict(x []float64) (dataset.Class, []float64)
}

var _ Predictor = (*model.Trained)(nil)

// Call is the model output for one region.
type Call struct {
	Class dataset.Class
	// Called is false when a feature was missing and no class was predicted.
	Called bool
	// Proba is ordered like the predictor's labels.
	Proba []float64
	// Confidence is the probability of the predicted class.
	Confidence float64
	// MapConfidence is Confidence times the region mappability.
	MapConfidence float64
}

// Score predicts one region. Regions with a non-finite feature are returned
// uncalled with NaN probabilities.
func Score(p Predictor, r dataset.Row) Call {
	x := r.Features()
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			proba := make([]float64, len(p.Labels()))
			for i := range proba {
				proba[i] = math.NaN()
			}
			return Call{Proba: proba, Confidence: math.NaN(), MapConfidence: math.NaN()}
		}
	}
	c, proba := p.Predict(x)
	conf := proba[evaluate.Argmax(proba)]
	return Call{
		Class:         c,
		Called:        true,
		Proba:         proba,
		Confidence:    conf,
		MapConfidence: conf * r.Mappability,
	}
}

// CollapseProba folds five-class probabilities into the three-class
// scheme: the mass of -2 joins -1 and the mass of 2 joins 1. The result is
// ordered like dataset.CollapsedClasses.
func CollapseProba(labels []dataset.Class, proba []float64) ([]float64, error) {
	if len(labels) != len(proba) {
		return nil, fmt.Errorf("%d labels but %d probabilities", len(labels), len(proba))
	}
	pos := make(map[dataset.Class]int, len(dataset.CollapsedClasses))
	for i, c := range dataset.CollapsedClasses {
		pos[c] = i
	}
	out := make([]float64, len(dataset.CollapsedClasses))
	for i, c := range labels {
		out[pos[c.Collapse()]] += proba[i]
	}
	return out, nil
}

// Collapse maps a five-class call onto the three-class scheme. The
// predicted class is remapped, never re-derived, and the confidence becomes
// the collapsed probability of that class.
func (c Call) Collapse(labels []dataset.Class, mappability float64) (Call, error) {
	proba, err := CollapseProba(labels, c.Proba)
	if err != nil {
		return c, err
	}
	out := Call{Class: c.Class.Collapse(), Called: c.Called, Proba: proba}
	if !c.Called {
		out.Confidence, out.MapConfidence = math.NaN(), math.NaN()
		return out, nil
	}
	for i, cl := range dataset.CollapsedClasses {
		if cl == out.Class {
			out.Confidence = proba[i]
		}
	}
	out.MapConfidence = out.Confidence * mappability
	return out, nil
}
