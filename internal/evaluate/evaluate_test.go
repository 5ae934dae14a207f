package evaluate

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cnv/internal/dataset"
)

var three = dataset.CollapsedClasses

func classes(v ...int) []dataset.Class {
	out := make([]dataset.Class, len(v))
	for i, x := range v {
		out[i] = dataset.Class(x)
	}
	return out
}

func TestConfusion(t *testing.T) {
	truth := classes(-1, -1, 0, 0, 1, 1, 2)
	pred := classes(-1, 0, 0, 0, 1, -1, 1)
	c := NewConfusion(three, truth, pred)

	assert.Equal(t, [][]int{{1, 1, 0}, {0, 2, 0}, {1, 0, 1}}, c.Counts)
	assert.Equal(t, 1, c.Dropped, "class 2 is outside the collapsed set")
	assert.Equal(t, 6, c.Total())
	assert.InDelta(t, 4.0/6, c.Accuracy(), 1e-12)
	assert.InDelta(t, 0.5, c.Precision(0), 1e-12)
	assert.InDelta(t, 2.0/3, c.Precision(1), 1e-12)
	assert.InDelta(t, 1.0, c.Precision(2), 1e-12)
	assert.InDelta(t, 0.5, c.Recall(2), 1e-12)
	assert.InDelta(t, c.Accuracy(), c.AvgF1(Micro), 1e-12)

	macro := (c.F1(0) + c.F1(1) + c.F1(2)) / 3
	assert.InDelta(t, macro, c.AvgF1(Macro), 1e-12)
}

func TestConfusion_MacroSkipsAbsentClasses(t *testing.T) {
	c := NewConfusion(three, classes(0, 0), classes(0, 0))
	assert.InDelta(t, 1.0, c.AvgF1(Macro), 1e-12)
}

func TestRates_ZeroDenominators(t *testing.T) {
	c := NewConfusion(three, classes(0, 0), classes(0, 0))
	r := c.Rates(0) // class -1 never seen
	assert.Equal(t, Rates{TN: 2, TNR: 1}, r)

	r = c.Rates(1)
	assert.Equal(t, 1.0, r.TPR)
	assert.Equal(t, 0.0, r.FPR, "no negatives")
	assert.Equal(t, 0.0, r.TNR)
}

func TestParseMetric(t *testing.T) {
	truth := classes(-1, 0, 1, 1)
	pred := classes(-1, 0, 0, 1)
	for _, name := range []string{"f1_macro", "f1", "F1_Weighted", "accuracy", "precision_micro", "recall", "balanced_accuracy"} {
		m, err := ParseMetric(name)
		require.NoError(t, err, name)
		s := m.Score(three, truth, pred)
		assert.True(t, s > 0 && s <= 1, name)
	}
	m, _ := ParseMetric("accuracy")
	assert.InDelta(t, 0.75, m.Score(three, truth, pred), 1e-12)

	_, err := ParseMetric("f1_median")
	assert.Error(t, err)
	_, err = ParseMetric("roc")
	assert.Error(t, err)
}

func TestOneVsAll(t *testing.T) {
	proba := [][]float64{
		{0.7, 0.2, 0.1},
		{0.1, 0.3, 0.6},
	}
	got := OneVsAll(three, proba, dataset.Deletion)
	assert.InDelta(t, 0.7, got[0], 1e-12)
	assert.InDelta(t, 0.4, got[1], 1e-12)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float64{0.2, 0.4, 0.4}))
	assert.Equal(t, -1, Argmax([]float64{math.NaN()}))
}

func TestComputeROC(t *testing.T) {
	truth := classes(1, 1, 0, 0)
	perfect := ComputeROC(truth, []float64{0.9, 0.8, 0.2, 0.1}, dataset.Duplication)
	assert.InDelta(t, 1.0, perfect.AUC, 1e-12)
	assert.Equal(t, 0.0, perfect.FPR[0])
	assert.Equal(t, 1.0, perfect.FPR[len(perfect.FPR)-1])

	inverted := ComputeROC(truth, []float64{0.1, 0.2, 0.8, 0.9}, dataset.Duplication)
	assert.InDelta(t, 0.0, inverted.AUC, 1e-12)

	none := ComputeROC(truth, []float64{0.1, 0.2, 0.8, 0.9}, dataset.Deletion)
	assert.True(t, math.IsNaN(none.AUC))
}

func TestReport(t *testing.T) {
	truth := classes(-1, 0, 1)
	pred := classes(-1, 0, 1)
	proba := [][]float64{{0.8, 0.1, 0.1}, {0.1, 0.8, 0.1}, {0.1, 0.1, 0.8}}
	r := Evaluate("noSegDup", three, truth, pred, proba, Macro)
	require.Len(t, r.ROCs, 3)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.Contains(t, buf.String(), "== noSegDup ==")
	assert.Contains(t, buf.String(), "f1_macro\t1.0000")

	dir := t.TempDir()
	require.NoError(t, WriteReports(filepath.Join(dir, "r", "report.txt"), r))
	require.NoError(t, WriteROC(filepath.Join(dir, "roc.tsv"), r))
	b, err := os.ReadFile(filepath.Join(dir, "roc.tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "subset\tclass\tthreshold\tfpr\ttpr\tauc\n")
}
