package normalize

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/integrity"
)

func sig(chrom string, start int, c float64) Signal {
	return Signal{Interval: genome.Interval{Chrom: chrom, Start: start, End: start + 100}, Count: c}
}

func TestLog2Ratio(t *testing.T) {
	assert.InDelta(t, 1.0, Log2Ratio(20, 10), 1e-9)
	assert.False(t, math.IsInf(Log2Ratio(0, 0), 0))
	assert.InDelta(t, 0.0, Log2Ratio(0, 0), 1e-12)
	// zero pool stays finite
	assert.False(t, math.IsNaN(Log2Ratio(5, 0)))
}

func TestJoin_InnerOnCoordinates(t *testing.T) {
	sample := []Signal{sig("chr2", 0, 10), sig("chr1", 0, 10), sig("chr1", 500, 4)}
	pool := []Signal{sig("chr1", 0, 5), sig("chr2", 0, 10), sig("chr3", 0, 1)}

	ratios, err := Join("S1", sample, pool)
	require.NoError(t, err)
	require.Len(t, ratios, 2)
	assert.Equal(t, "chr1", ratios[0].Chrom)
	assert.InDelta(t, 1.0, ratios[0].Value, 1e-9)
	assert.Equal(t, "chr2", ratios[1].Chrom)
}

func TestJoin_Empty(t *testing.T) {
	_, err := Join("S1", []Signal{sig("chr1", 0, 1)}, []Signal{sig("chr2", 0, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, integrity.ErrEmpty))
	var ee *integrity.EmptyError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "S1", ee.Sample)
}

func TestProfile_RatiosAndRecenter(t *testing.T) {
	sample := []Signal{sig("chr1", 0, 10), sig("chr1", 100, 20), sig("chr2", 0, 30), sig("chrX", 0, 40)}
	pool := []Signal{sig("chr1", 0, 10), sig("chr1", 100, 10), sig("chr2", 0, 10), sig("chrX", 0, 10)}

	p, err := NewProfile("S1", sample, pool)
	require.NoError(t, err)
	before := p.Values()
	want := []float64{0, 1, math.Log2(3), 2}
	for i := range want {
		assert.InDelta(t, want[i], before[i], 1e-9)
	}

	m, err := p.Recenter()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m, 1e-9, "median of autosomal 0, 1, log2(3)")
	after := p.Values()
	for i := range before {
		assert.InDelta(t, before[i]-m, after[i], 1e-12)
	}
	assert.True(t, p.Recentered())

	_, err = p.Recenter()
	assert.ErrorIs(t, err, ErrRecentered)
	assert.Equal(t, after, p.Values(), "second recenter is a no-op")
}

func TestProfile_RecenterWithoutAutosomes(t *testing.T) {
	p, err := NewProfile("S1", []Signal{sig("X", 0, 1)}, []Signal{sig("X", 0, 1)})
	require.NoError(t, err)
	_, err = p.Recenter()
	assert.ErrorIs(t, err, integrity.ErrEmpty)
}

func TestReadSignal_FiltersInTarget(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rc.txt")
	require.NoError(t, os.WriteFile(p, []byte(
		"chrom\tstart\tend\tRCNorm\tClass\n"+
			"chr1\t0\t100\t12.5\tIN\n"+
			"chr1\t100\t200\t3.0\tOUT\n"+
			"chrX\t0\t100\t7\tIN\n"), 0644))

	s, err := ReadSignal(p)
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, 12.5, s[0].Count)
	assert.Equal(t, "chrX", s[1].Chrom)
}

func TestMADOutliers(t *testing.T) {
	spreads := MADOutliers(map[string][]float64{
		"b": {0, 0.01, -0.01, 0},
		"a": {-1, 1, -1, 1},
	}, DefaultMADThreshold)
	require.Len(t, spreads, 2)
	assert.Equal(t, "a", spreads[0].Sample)
	assert.True(t, spreads[0].Outlier)
	assert.False(t, spreads[1].Outlier)
}

func TestSegmentDir(t *testing.T) {
	dir := t.TempDir()
	sd := filepath.Join(dir, "S1")
	require.NoError(t, os.MkdirAll(sd, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sd, "HSLMResults_S1.txt"), []byte(
		"Chromosome\tStart\tEnd\tSegMean\n"+
			"chr1\t1\t2\t0.5\n"+
			"chrX\t1\t2\t9\n"+
			"chr2\t1\t2\t-0.5\n"), 0644))

	values, err := SegmentDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.5}, values["S1"])

	spreads := MADOutliers(values, 1)
	all := filepath.Join(dir, "out", "All_Samples_with_MAD.csv")
	keep := filepath.Join(dir, "out", "Samples_ToKeep_with_MAD.csv")
	require.NoError(t, WriteSpreads(all, keep, spreads))
	b, err := os.ReadFile(keep)
	require.NoError(t, err)
	assert.Equal(t, "samplename\tsegmean_mads\nS1\t0.5\n", string(b))
}
