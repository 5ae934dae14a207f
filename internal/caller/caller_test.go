package caller

import (
	"bufio"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cnv/internal/annotate"
	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/duckdb"
	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// thresholdModel calls deletions below -0.5 and normals elsewhere.
type thresholdModel struct{}

func (thresholdModel) Labels() []dataset.Class { return dataset.Classes }

func (thresholdModel) Predict(x []float64) (dataset.Class, []float64) {
	if x[2] < -0.5 {
		return dataset.Deletion, []float64{0.05, 0.85, 0.05, 0.03, 0.02}
	}
	return dataset.Normal, []float64{0.01, 0.04, 0.9, 0.03, 0.02}
}

func row(chrom string, start int, nrc, mapp float64) dataset.Row {
	return dataset.Row{
		Region: annotate.Region{
			Interval:    genome.Interval{Chrom: chrom, Start: start, End: start + 100},
			GC:          0.5,
			Mappability: mapp,
		},
		NRC: nrc,
		ID:  "S1",
	}
}

func TestScore(t *testing.T) {
	c := Score(thresholdModel{}, row("chrX", 100, -1, 0.5))
	assert.True(t, c.Called)
	assert.Equal(t, dataset.Deletion, c.Class)
	assert.InDelta(t, 0.85, c.Confidence, 1e-12)
	assert.InDelta(t, 0.425, c.MapConfidence, 1e-12)

	c = Score(thresholdModel{}, row("chrX", 100, math.NaN(), 1))
	assert.False(t, c.Called)
	assert.True(t, math.IsNaN(c.Confidence))
	require.Len(t, c.Proba, 5)
	assert.True(t, math.IsNaN(c.Proba[0]))
}

func TestCollapseProba_ConservesMass(t *testing.T) {
	cases := [][]float64{
		{0.1, 0.2, 0.3, 0.25, 0.15},
		{0.7, 0.1, 0.1, 0.05, 0.05},
		{0, 0, 1, 0, 0},
		{0.2, 0.2, 0.2, 0.2, 0.2},
	}
	for _, p := range cases {
		got, err := CollapseProba(dataset.Classes, p)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.InDelta(t, 1, got[0]+got[1]+got[2], 1e-12)
		assert.InDelta(t, p[0]+p[1], got[0], 1e-12)
		assert.InDelta(t, p[2], got[1], 1e-12)
		assert.InDelta(t, p[3]+p[4], got[2], 1e-12)
	}

	_, err := CollapseProba(dataset.Classes, []float64{1})
	assert.Error(t, err)
}

func TestCallCollapse(t *testing.T) {
	c := Call{
		Class:      dataset.MultiDuplication,
		Called:     true,
		Proba:      []float64{0, 0.1, 0.2, 0.3, 0.4},
		Confidence: 0.4,
	}
	got, err := c.Collapse(dataset.Classes, 0.5)
	require.NoError(t, err)
	assert.Equal(t, dataset.Duplication, got.Class)
	assert.InDelta(t, 0.7, got.Confidence, 1e-12)
	assert.InDelta(t, 0.35, got.MapConfidence, 1e-12)

	c = Call{Class: dataset.DoubleDeletion, Called: true, Proba: []float64{0.5, 0.1, 0.2, 0.1, 0.1}}
	got, err = c.Collapse(dataset.Classes, 1)
	require.NoError(t, err)
	assert.Equal(t, dataset.Deletion, got.Class)
	assert.InDelta(t, 0.6, got.Confidence, 1e-12)
}

func TestTiersFilter(t *testing.T) {
	tiers := DefaultTiers()
	require.NoError(t, tiers.Validate())

	tests := []struct {
		p    float64
		want string
	}{
		{0.95, FilterPass},
		{0.9, FilterMedium},
		{0.8, FilterMedium},
		{0.7, FilterMedium},
		{0.5, FilterLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tiers.Filter(tt.p), "p=%v", tt.p)
	}

	assert.Error(t, Tiers{High: 0.5, Medium: 0.7}.Validate())
	assert.Equal(t, FilterPass, Tiers{High: 0.5, Medium: 0.2}.Filter(0.6))
}

func TestChunks(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 4}, {4, 7}, {7, 10}}, Chunks(10, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, Chunks(2, 8))
	assert.Empty(t, Chunks(0, 4))
}

func TestParallelCall_OrderPreservation(t *testing.T) {
	items := make([]WorkItem, 100)
	for i := range items {
		items[i] = WorkItem{Seq: i, Sample: strings.Repeat("s", i%7+1)}
	}
	results := ParallelCall(items, 6, func(it WorkItem) WorkResult {
		return WorkResult{Output: it.Sample}
	})
	var seqs []int
	require.NoError(t, OrderedCollect(results, func(r WorkResult) error {
		seqs = append(seqs, r.Seq)
		assert.Equal(t, items[r.Seq].Sample, r.Output)
		return nil
	}))
	require.Len(t, seqs, 100)
	for i, s := range seqs {
		assert.Equal(t, i, s)
	}
}

func TestOrderedCollect_StopsOnError(t *testing.T) {
	items := make([]WorkItem, 20)
	for i := range items {
		items[i] = WorkItem{Seq: i}
	}
	results := ParallelCall(items, 4, func(WorkItem) WorkResult { return WorkResult{} })
	boom := errors.New("boom")
	n := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		n++
		if r.Seq == 4 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, n)
}

func writeTarget(t *testing.T, dir, sample string, rows []dataset.Row) string {
	t.Helper()
	for i := range rows {
		rows[i].ID = sample
	}
	path := filepath.Join(dir, dataset.TargetFile(sample))
	require.NoError(t, dataset.WriteTable(path, &dataset.Table{Rows: rows}))
	return path
}

type memStore struct {
	mu      sync.Mutex
	calls   map[string][]duckdb.Call
	sources map[string]duckdb.FileFingerprint
}

func newMemStore() *memStore {
	return &memStore{calls: map[string][]duckdb.Call{}, sources: map[string]duckdb.FileFingerprint{}}
}

func (m *memStore) WriteCalls(sample, _ string, source duckdb.FileFingerprint, calls []duckdb.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[sample] = calls
	m.sources[sample] = source
	return nil
}

func (m *memStore) Processed(sample, _ string, source duckdb.FileFingerprint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	got, ok := m.sources[sample]
	return ok && got.Same(source), nil
}

func readHeader(t *testing.T, path string) []string {
	t.Helper()
	rc, err := tsv.OpenStream(path)
	require.NoError(t, err)
	defer rc.Close()
	sc := bufio.NewScanner(rc)
	require.True(t, sc.Scan())
	return strings.Split(sc.Text(), "\t")
}

func TestBatchRun(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "calls")
	writeTarget(t, in, "S1", []dataset.Row{row("chr1", 100, 0.1, 1), row("chrX", 100, -1, 0.9)})
	writeTarget(t, in, "S2", []dataset.Row{row("chr1", 100, 0, 1), row("chrX", 100, math.NaN(), 1)})
	require.NoError(t, os.WriteFile(filepath.Join(in, dataset.TargetFile("BAD")), []byte("Chr\tStart\n"), 0644))

	items, err := Inputs(in)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "BAD", items[0].Sample)

	store := newMemStore()
	b := NewBatch(thresholdModel{}, "LR", out)
	b.Workers = 2
	b.Store = store

	res, err := b.Run(items)
	require.Error(t, err)
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"BAD"}, be.Failed)
	assert.True(t, IsBatchError(err))
	assert.Equal(t, []string{"S1", "S2"}, res.Called)

	header := readHeader(t, b.OutputPath("S1"))
	assert.Equal(t, []string{
		"LR_pred", "LR_pred_proba", "LR_pred_confidence",
		"LR_pred_proba_(-2)", "LR_pred_proba_(-1)", "LR_pred_proba_(0)", "LR_pred_proba_(1)", "LR_pred_proba_(2)",
	}, header[len(header)-8:])
	assert.FileExists(t, b.SummaryPath("S1"))

	require.Len(t, res.Summaries, 2)
	assert.Equal(t, 1, res.Summaries[0].Count(dataset.Deletion))
	assert.Equal(t, 1, res.Summaries[1].Uncalled)

	require.Len(t, store.calls["S2"], 2)
	assert.False(t, store.calls["S2"][1].Called)
	assert.InDelta(t, 0.9*0.85, store.calls["S1"][1].Confidence, 1e-12)

	// rerun skipping called samples
	b.SkipTested = true
	res, err = b.Run(items)
	require.Error(t, err)
	assert.Equal(t, []string{"S1", "S2"}, res.Skipped)
	assert.Empty(t, res.Called)

	// a changed input is called again
	writeTarget(t, in, "S2", []dataset.Row{row("chr1", 100, 0, 1), row("chr2", 100, 0, 1), row("chrX", 100, 1, 1)})
	res, err = b.Run(items)
	require.Error(t, err)
	assert.Equal(t, []string{"S1"}, res.Skipped)
	assert.Equal(t, []string{"S2"}, res.Called)
	assert.Len(t, store.calls["S2"], 3)
}

func TestBatchRun_ForceMedianNorm(t *testing.T) {
	in := t.TempDir()
	writeTarget(t, in, "S1", []dataset.Row{
		row("chr1", 100, 0.2, 1), row("chr2", 100, 0.4, 1), row("chr3", 100, 0.6, 1),
		row("chrX", 100, -0.2, 1),
	})
	items, err := Inputs(in)
	require.NoError(t, err)

	b := NewBatch(thresholdModel{}, "LR", t.TempDir())
	b.ForceMedianNorm = true
	res, err := b.Run(items)
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)
	s := res.Summaries[0]
	assert.InDelta(t, 0.4, s.Shift, 1e-12)
	// chrX -0.2 becomes -0.6, a deletion
	assert.Equal(t, 1, s.Count(dataset.Deletion))

	tbl, err := dataset.ReadTable(b.OutputPath("S1"))
	require.NoError(t, err)
	assert.InDelta(t, -0.6, tbl.Rows[3].NRC, 1e-12)
}

func TestBatchRun_Empty(t *testing.T) {
	items, err := Inputs(t.TempDir())
	require.NoError(t, err)
	res, err := NewBatch(thresholdModel{}, "LR", t.TempDir()).Run(items)
	require.NoError(t, err)
	assert.Empty(t, res.Called)
}
