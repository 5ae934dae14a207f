package dataset

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/inodb/vibe-cnv/internal/annotate"
	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/integrity"
	"github.com/inodb/vibe-cnv/internal/normalize"
	"github.com/inodb/vibe-cnv/internal/samplesheet"
)

func region(chrom string, start int) annotate.Region {
	return annotate.Region{
		Interval:    genome.Interval{Chrom: chrom, Start: start, End: start + 100},
		GC:          0.5,
		Mappability: 1,
	}
}

func row(chrom string, start int, nrc float64, c Class) Row {
	return Row{Region: region(chrom, start), NRC: nrc, ID: "S1", Class: c}
}

func testResources() Resources {
	return Resources{
		PAR:    []genome.Interval{{Chrom: "X", Start: 0, End: 1000}},
		XLR:    []genome.Interval{{Chrom: "X", Start: 2000, End: 3000}},
		SegDup: []genome.Interval{{Chrom: "X", Start: 2500, End: 2600}, {Chrom: "X", Start: 4000, End: 4100}, {Chrom: "X", Start: 4050, End: 4200}},
	}
}

func chrXRows() []Row {
	var rows []Row
	for _, s := range []int{500, 2000, 2500, 4000, 4100, 5000, 6000} {
		rows = append(rows, row("chrX", s, 0, Normal))
	}
	rows = append(rows, row("chr1", 2000, 0, Normal))
	return rows
}

func TestPartition_StrictAndXLRFirst(t *testing.T) {
	rows := chrXRows()
	p, err := NewPartitioner(Targets(regionsOf(rows)), testResources())
	require.NoError(t, err)

	part, err := p.Split("S1", rows)
	require.NoError(t, err)

	starts := func(rs []Row) []int {
		var out []int
		for _, r := range rs {
			out = append(out, r.Start)
		}
		return out
	}
	assert.Equal(t, []int{2000, 2500}, starts(part.XLR), "XLR wins over SegDup")
	assert.Equal(t, []int{4000, 4100}, starts(part.SegDup))
	assert.Equal(t, []int{5000, 6000}, starts(part.NoSegDup))

	// every non-PAR chrX row lands in exactly one subset
	seen := make(map[genome.Interval]int)
	for _, rs := range [][]Row{part.XLR, part.SegDup, part.NoSegDup} {
		for _, r := range rs {
			seen[r.Interval]++
		}
	}
	for _, r := range rows {
		want := 1
		if r.Chrom != "chrX" || r.Start == 500 {
			want = 0
		}
		assert.Equal(t, want, seen[r.Interval], r.Interval.String())
	}
}

func regionsOf(rows []Row) []annotate.Region {
	out := make([]annotate.Region, len(rows))
	for i, r := range rows {
		out[i] = r.Region
	}
	return out
}

func TestPartition_EmptySubset(t *testing.T) {
	rows := []Row{row("chrX", 5000, 0, Normal)}
	p, err := NewPartitioner(Targets(regionsOf(rows)), testResources())
	require.NoError(t, err)
	_, err = p.Split("S1", rows)
	var ee *integrity.EmptyError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, SubsetXLR, ee.Subset)
	assert.Equal(t, "S1", ee.Sample)
}

func TestStratifiedSplit(t *testing.T) {
	var rows []Row
	for i := 0; i < 60; i++ {
		rows = append(rows, row("chrX", i*100, 0, Deletion))
	}
	for i := 0; i < 40; i++ {
		rows = append(rows, row("chrX", i*100, 0, Normal))
	}

	t.Run("fraction", func(t *testing.T) {
		train, test, err := StratifiedSplit(rows, SplitOptions{TestFraction: 0.2}, rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		assert.Len(t, train, 80)
		assert.Len(t, test, 20)
		assert.Equal(t, 48, CountClasses(train)[Deletion])
		assert.Equal(t, 12, CountClasses(test)[Deletion])
	})

	t.Run("count overrides fraction", func(t *testing.T) {
		train, test, err := StratifiedSplit(rows, SplitOptions{TestFraction: 0.2, TrainSamples: 10}, rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		assert.Len(t, train, 10)
		assert.Len(t, test, 90)
		assert.Equal(t, 6, CountClasses(train)[Deletion])
	})

	t.Run("deterministic", func(t *testing.T) {
		a, _, err := StratifiedSplit(rows, SplitOptions{TestFraction: 0.3}, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		b, _, err := StratifiedSplit(rows, SplitOptions{TestFraction: 0.3}, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("too many", func(t *testing.T) {
		_, _, err := StratifiedSplit(rows, SplitOptions{TrainSamples: 100}, rand.New(rand.NewSource(1)))
		assert.Error(t, err)
	})
}

func TestAllocate(t *testing.T) {
	assert.Equal(t, []int{2, 1}, allocate([]int{2, 1}, 3))
	assert.Equal(t, []int{1, 1, 1}, allocate([]int{3, 3, 3}, 3))
	assert.Equal(t, []int{4, 3}, allocate([]int{5, 5}, 7), "tie goes to the first class")
}

func TestAddNoise_RoundTrip(t *testing.T) {
	rows := []Row{row("chrX", 0, 0.1, Deletion), row("chrX", 100, -0.2, Normal)}
	aug := AddNoise(rows, 0, 0.05, rand.New(rand.NewSource(3)))
	require.Len(t, aug, 4)

	train, test, err := StratifiedSplit(aug, SplitOptions{TestFraction: 0.5}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	all := append(append([]Row{}, train...), test...)
	clean, noisy := SplitNoisy(all)
	assert.Len(t, clean, 2)
	assert.Len(t, noisy, 2)
	assert.ElementsMatch(t, rows, clean, "clean rows come back unchanged")
	for _, r := range noisy {
		assert.Equal(t, 100, r.Length())
	}
}

func TestDDUPCandidates(t *testing.T) {
	rows := []Row{
		row("chr1", 0, 0.1, Normal),
		row("chr1", 100, 0.2, Normal),
		row("chr1", 200, 0.3, Normal),
		row("chrX", 0, 5, Normal),
	}
	low := row("chr2", 0, 9, Normal)
	low.Mappability = 0.5
	rows = append(rows, low)

	got := DDUPCandidates(rows)
	require.Len(t, got, 1)
	assert.Equal(t, 200, got[0].Start)
	assert.Equal(t, MultiDuplication, got[0].Class)
}

func TestCapToXLR(t *testing.T) {
	var rows []Row
	for i := 0; i < 50; i++ {
		rows = append(rows, row("chr1", i*100, 0, MultiDuplication))
	}
	capped := CapToXLR(rows, 31, rand.New(rand.NewSource(42)))
	assert.Len(t, capped, 10)
	for i := 1; i < len(capped); i++ {
		assert.Less(t, capped[i-1].Start, capped[i].Start, "original order kept")
	}
	assert.Len(t, CapToXLR(rows[:5], 31, rand.New(rand.NewSource(42))), 5)
}

func TestMergeSimulated(t *testing.T) {
	xlr := []Row{row("chrX", 0, 0, Deletion), row("chrX", 100, 0, Deletion), row("chrX", 200, 0, Normal)}
	sim := []Row{
		row("chrX", 0, -5, DoubleDeletion),
		row("chrX", 100, -5, DoubleDeletion),
		row("chrX", 200, -5, DoubleDeletion),
		row("chrX", 300, -5, Deletion),
	}
	merged, err := MergeSimulated(xlr, sim, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 2, CountClasses(merged)[DoubleDeletion])
	assert.Len(t, merged, 5)

	_, err = MergeSimulated(xlr, xlr, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestTable_RoundTripAndRecenter(t *testing.T) {
	tbl := &Table{
		Labeled:   true,
		Augmented: true,
		Rows: []Row{
			row("chr1", 0, 1, Normal),
			row("chr2", 0, 3, Normal),
			{Region: region("chrX", 0), NRC: math.NaN(), ID: "S1", Class: Deletion, Noisy: true},
		},
	}
	p := filepath.Join(t.TempDir(), "t.txt.gz")
	require.NoError(t, WriteTable(p, tbl))

	back, err := ReadTable(p)
	require.NoError(t, err)
	assert.True(t, back.Labeled)
	require.Len(t, back.Rows, 3)
	assert.Equal(t, Deletion, back.Rows[2].Class)
	assert.True(t, back.Rows[2].Noisy)
	assert.True(t, math.IsNaN(back.Rows[2].NRC))
	assert.Equal(t, []float64{0.5, 100, 1}, back.Rows[0].Features())

	m, err := back.RecenterAutosomal()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, m, 1e-12)
	assert.InDelta(t, -1.0, back.Rows[0].NRC, 1e-12)
	_, err = back.RecenterAutosomal()
	assert.ErrorIs(t, err, ErrRecentered)
	assert.InDelta(t, -1.0, back.Rows[0].NRC, 1e-12)
}

func TestReadTable_BadClass(t *testing.T) {
	p := filepath.Join(t.TempDir(), "t.txt")
	require.NoError(t, os.WriteFile(p, []byte(
		"Chr\tStart\tEnd\tGC_content\tMappability\tLength\tNRC_poolNorm\tID\tClass\n"+
			"chrX\t0\t10\t0.5\t1\t10\t0\tS\t7\n"), 0644))
	_, err := ReadTable(p)
	assert.Error(t, err)
}

func TestJoin_AttachesRegions(t *testing.T) {
	regions := []annotate.Region{region("chr1", 0), region("chr1", 1000)}
	ratios := []normalize.Ratio{
		{Interval: genome.Interval{Chrom: "chr1", Start: 0, End: 100}, Value: 1},
		{Interval: genome.Interval{Chrom: "chr1", Start: 1010, End: 1050}, Value: 2},
		{Interval: genome.Interval{Chrom: "chr1", Start: 5000, End: 5100}, Value: 3},
	}
	rows, err := Join("S1", regions, ratios)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1010, rows[1].Start)
	assert.Equal(t, 40, rows[1].Length())

	_, err = Join("S1", regions, ratios[2:])
	assert.ErrorIs(t, err, integrity.ErrEmpty)
}

func writeSignal(t *testing.T, path string, rows []Row, count func(Row) float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("chrom\tstart\tend\tRCNorm\tClass\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s\t%d\t%d\t%g\tIN\n", r.Chrom, r.Start, r.End, count(r))
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func TestBuilder_Build(t *testing.T) {
	dir := t.TempDir()
	rows := chrXRows()
	// extra autosomal rows for medians and DDUP candidates
	for i := 0; i < 6; i++ {
		rows = append(rows, row("chr2", i*100, 0, Normal))
	}
	regions := regionsOf(rows)

	pool := make([]normalize.Signal, len(rows))
	for i, r := range rows {
		pool[i] = normalize.Signal{Interval: r.Interval, Count: 10}
	}
	sig := func(name string, f func(Row) float64) string {
		p := filepath.Join(dir, name+".txt")
		writeSignal(t, p, rows, f)
		return p
	}
	female := sig("F1", func(Row) float64 { return 10 })
	male := sig("M1", func(r Row) float64 {
		if r.Chrom == "chrX" {
			return 5
		}
		return 10
	})
	mf := sig("F1_M1", func(r Row) float64 { return 10 + float64(r.Start)/100 })

	p, err := NewPartitioner(Targets(regions), testResources())
	require.NoError(t, err)
	b := NewBuilder(regions, pool)
	b.Partitioner = p
	b.TrainDir = filepath.Join(dir, "train")
	b.CallDir = filepath.Join(dir, "call")

	res, err := b.Build([]SampleInput{
		{Sample: samplesheet.Sample{ID: "F1", Gender: samplesheet.Female, Types: []string{"train"}}, SignalPath: female},
		{Sample: samplesheet.Sample{ID: "M1", Gender: samplesheet.Male, Types: []string{"train", "t"}}, SignalPath: male},
		{Sample: samplesheet.Sample{ID: "F1_M1", Gender: samplesheet.MaleFemale, Types: []string{"train"}}, SignalPath: mf},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Training[SubsetXLR])
	assert.Equal(t, 6, res.Training[SubsetSegDup])
	assert.Equal(t, 6, res.Training[SubsetNoSegDup])
	// two XLR rows per sample caps DDUP at zero
	assert.Equal(t, 0, res.Training[SubsetDDUP])
	assert.InDelta(t, 0.0, res.FemaleMedians["F1"], 1e-9)
	require.Len(t, res.CallFiles, 1)
	assert.Equal(t, filepath.Join(dir, "call", "M1_TARGET.txt.gz"), res.CallFiles[0])

	xlr, err := ReadTable(filepath.Join(b.TrainDir, XLRFile))
	require.NoError(t, err)
	counts := CountClasses(xlr.Rows)
	assert.Equal(t, map[Class]int{Deletion: 2, Normal: 2, Duplication: 2}, counts)
	for _, r := range xlr.Rows {
		if r.Class == Deletion {
			assert.InDelta(t, -1.0, r.NRC, 1e-9, "male chrX ratio is not recentred")
		}
	}

	call, err := ReadTable(res.CallFiles[0])
	require.NoError(t, err)
	assert.False(t, call.Labeled)
	assert.Len(t, call.Rows, len(rows))

	_, err = os.Stat(filepath.Join(b.TrainDir, FemaleMediansFile))
	assert.NoError(t, err)
}
