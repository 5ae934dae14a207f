package model

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/inodb/vibe-cnv/internal/dataset"
)

// Softmax is an L2-regularised multinomial logistic regression, optionally
// on degree-2 polynomial features. C is the inverse regularisation strength.
type Softmax struct {
	C       float64
	Degree  int
	MaxIter int

	Classes []dataset.Class
	// Theta holds one row of Dim coefficients per class, the last being
	// the intercept.
	Theta []float64
	Dim   int
}

// expand returns x with its squares and pairwise products appended when
// degree is 2, followed by a constant 1.
func expand(x []float64, degree int) []float64 {
	out := make([]float64, 0, len(x)*(len(x)+3)/2+1)
	out = append(out, x...)
	if degree == 2 {
		for i := range x {
			for j := i; j < len(x); j++ {
				out = append(out, x[i]*x[j])
			}
		}
	}
	return append(out, 1)
}

// Labels implements Classifier.
func (m *Softmax) Labels() []dataset.Class { return m.Classes }

// Fit minimises the weighted mean cross-entropy plus an L2 penalty on the
// non-intercept coefficients with L-BFGS.
func (m *Softmax) Fit(X [][]float64, y []int, w []float64, labels []dataset.Class, _ *rand.Rand) error {
	k := len(labels)
	if k < 2 {
		return errors.New("softmax: need at least two classes")
	}
	if len(X) == 0 {
		return errors.New("softmax: no training rows")
	}
	Z := make([][]float64, len(X))
	for i, x := range X {
		Z[i] = expand(x, m.Degree)
	}
	d := len(Z[0])
	sumW := floats.Sum(w)
	if sumW <= 0 {
		return errors.New("softmax: non-positive total sample weight")
	}
	penalty := 1 / (m.C * sumW)

	logits := make([]float64, k)
	lossGrad := func(theta, grad []float64) float64 {
		if grad != nil {
			for i := range grad {
				grad[i] = 0
			}
		}
		var loss float64
		for i, z := range Z {
			for c := 0; c < k; c++ {
				logits[c] = floats.Dot(theta[c*d:(c+1)*d], z)
			}
			lse := floats.LogSumExp(logits)
			loss += w[i] * (lse - logits[y[i]])
			if grad == nil {
				continue
			}
			for c := 0; c < k; c++ {
				g := math.Exp(logits[c] - lse)
				if c == y[i] {
					g--
				}
				floats.AddScaled(grad[c*d:(c+1)*d], w[i]*g/sumW, z)
			}
		}
		loss /= sumW
		for c := 0; c < k; c++ {
			coef := theta[c*d : (c+1)*d-1]
			loss += 0.5 * penalty * floats.Dot(coef, coef)
			if grad != nil {
				floats.AddScaled(grad[c*d:(c+1)*d-1], penalty, coef)
			}
		}
		return loss
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 { return lossGrad(theta, nil) },
		Grad: func(grad, theta []float64) { lossGrad(theta, grad) },
	}
	settings := &optimize.Settings{MajorIterations: m.MaxIter, GradientThreshold: 1e-6}
	x0 := make([]float64, k*d)
	res, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if res == nil || len(res.X) != len(x0) {
		return fmt.Errorf("softmax: optimisation failed: %v", err)
	}
	for _, v := range res.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("softmax: optimisation diverged: %v", err)
		}
	}

	m.Classes = append([]dataset.Class(nil), labels...)
	m.Theta = res.X
	m.Dim = d
	return nil
}

// PredictProba implements Classifier.
func (m *Softmax) PredictProba(x []float64) []float64 {
	z := expand(x, m.Degree)
	k := len(m.Classes)
	p := make([]float64, k)
	for c := 0; c < k; c++ {
		p[c] = floats.Dot(m.Theta[c*m.Dim:(c+1)*m.Dim], z)
	}
	lse := floats.LogSumExp(p)
	for c := range p {
		p[c] = math.Exp(p[c] - lse)
	}
	return p
}
