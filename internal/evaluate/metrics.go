// Package evaluate scores class predictions: confusion matrices, averaged
// precision/recall/F1, per-class one-vs-all rates and ROC curves.
package evaluate

import (
	"fmt"
	"strings"

	"github.com/inodb/vibe-cnv/internal/dataset"
)

// Averaging selects how per-class scores are combined.
type Averaging string

const (
	Macro    Averaging = "macro"
	Micro    Averaging = "micro"
	Weighted Averaging = "weighted"
)

// ParseAveraging validates an averaging name.
func ParseAveraging(s string) (Averaging, error) {
	switch a := Averaging(strings.ToLower(s)); a {
	case Macro, Micro, Weighted:
		return a, nil
	}
	return "", fmt.Errorf("unknown averaging %q (want macro, micro or weighted)", s)
}

// Confusion is a confusion matrix; Counts[i][j] is the number of rows of
// true class Labels[i] predicted as Labels[j]. Rows whose true or predicted
// class is outside Labels are counted in Dropped.
type Confusion struct {
	Labels  []dataset.Class
	Counts  [][]int
	Dropped int
}

// NewConfusion tallies predictions against truth.
func NewConfusion(labels []dataset.Class, truth, pred []dataset.Class) *Confusion {
	pos := make(map[dataset.Class]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	c := &Confusion{Labels: labels, Counts: make([][]int, len(labels))}
	for i := range c.Counts {
		c.Counts[i] = make([]int, len(labels))
	}
	for k := range truth {
		i, ok1 := pos[truth[k]]
		j, ok2 := pos[pred[k]]
		if !ok1 || !ok2 {
			c.Dropped++
			continue
		}
		c.Counts[i][j]++
	}
	return c
}

// Total returns the number of tallied rows.
func (c *Confusion) Total() int {
	n := 0
	for _, row := range c.Counts {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// Support returns the number of rows whose true class is Labels[i].
func (c *Confusion) Support(i int) int {
	n := 0
	for _, v := range c.Counts[i] {
		n += v
	}
	return n
}

func (c *Confusion) predicted(i int) int {
	n := 0
	for _, row := range c.Counts {
		n += row[i]
	}
	return n
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Accuracy returns the fraction of correct predictions.
func (c *Confusion) Accuracy() float64 {
	tp := 0
	for i := range c.Labels {
		tp += c.Counts[i][i]
	}
	return ratio(tp, c.Total())
}

// Precision of Labels[i]; 0 when the class was never predicted.
func (c *Confusion) Precision(i int) float64 {
	return ratio(c.Counts[i][i], c.predicted(i))
}

// Recall of Labels[i]; 0 when the class has no support.
func (c *Confusion) Recall(i int) float64 {
	return ratio(c.Counts[i][i], c.Support(i))
}

// F1 of Labels[i].
func (c *Confusion) F1(i int) float64 {
	p, r := c.Precision(i), c.Recall(i)
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// average combines a per-class score. Micro averaging of precision, recall
// and F1 over single-label predictions equals accuracy.
func (c *Confusion) average(score func(int) float64, avg Averaging) float64 {
	switch avg {
	case Micro:
		return c.Accuracy()
	case Weighted:
		total := c.Total()
		if total == 0 {
			return 0
		}
		var s float64
		for i := range c.Labels {
			s += score(i) * float64(c.Support(i))
		}
		return s / float64(total)
	default:
		// classes absent from both truth and predictions do not count
		var s float64
		n := 0
		for i := range c.Labels {
			if c.Support(i)+c.predicted(i) == 0 {
				continue
			}
			s += score(i)
			n++
		}
		if n == 0 {
			return 0
		}
		return s / float64(n)
	}
}

// AvgPrecision returns averaged precision.
func (c *Confusion) AvgPrecision(avg Averaging) float64 { return c.average(c.Precision, avg) }

// AvgRecall returns averaged recall.
func (c *Confusion) AvgRecall(avg Averaging) float64 { return c.average(c.Recall, avg) }

// AvgF1 returns averaged F1.
func (c *Confusion) AvgF1(avg Averaging) float64 { return c.average(c.F1, avg) }

// Rates are one-vs-all rates of a single class.
type Rates struct {
	TP, FP, TN, FN     int
	TPR, TNR, FPR, FNR float64
}

// Rates returns the one-vs-all rates of Labels[i]. A rate whose
// denominator is zero is 0.
func (c *Confusion) Rates(i int) Rates {
	var r Rates
	total := c.Total()
	r.TP = c.Counts[i][i]
	r.FN = c.Support(i) - r.TP
	r.FP = c.predicted(i) - r.TP
	r.TN = total - r.TP - r.FN - r.FP
	r.TPR = ratio(r.TP, r.TP+r.FN)
	r.FNR = ratio(r.FN, r.TP+r.FN)
	r.TNR = ratio(r.TN, r.TN+r.FP)
	r.FPR = ratio(r.FP, r.TN+r.FP)
	return r
}

// Metric is a named model-selection score.
type Metric struct {
	Name  string
	score func(*Confusion) float64
}

// ParseMetric resolves a metric name: accuracy, balanced_accuracy, or
// f1/precision/recall optionally suffixed with _macro, _micro or _weighted.
// A bare f1, precision or recall is macro-averaged.
func ParseMetric(name string) (Metric, error) {
	n := strings.ToLower(name)
	switch n {
	case "accuracy":
		return Metric{Name: n, score: (*Confusion).Accuracy}, nil
	case "balanced_accuracy":
		return Metric{Name: n, score: func(c *Confusion) float64 { return c.AvgRecall(Macro) }}, nil
	}
	base, suffix, _ := strings.Cut(n, "_")
	avg := Macro
	if suffix != "" {
		a, err := ParseAveraging(suffix)
		if err != nil {
			return Metric{}, fmt.Errorf("unknown metric %q", name)
		}
		avg = a
	}
	var score func(*Confusion) float64
	switch base {
	case "f1":
		score = func(c *Confusion) float64 { return c.AvgF1(avg) }
	case "precision":
		score = func(c *Confusion) float64 { return c.AvgPrecision(avg) }
	case "recall":
		score = func(c *Confusion) float64 { return c.AvgRecall(avg) }
	default:
		return Metric{}, fmt.Errorf("unknown metric %q", name)
	}
	return Metric{Name: n, score: score}, nil
}

// Score evaluates the metric over the given label set.
func (m Metric) Score(labels []dataset.Class, truth, pred []dataset.Class) float64 {
	return m.score(NewConfusion(labels, truth, pred))
}
