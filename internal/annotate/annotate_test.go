package annotate

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cnv/internal/genome"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestReadTarget_DropsHeaderAndExtraColumns(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "target.bed",
		"chrom\tstart\tend\tname\n"+
			"chr2\t100\t200\tEXON2\n"+
			"chr1\t300\t400\tEXON1\n")

	targets, err := ReadTarget(p)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, genome.Interval{Chrom: "chr1", Start: 300, End: 400}, targets[0], "sorted")
	assert.True(t, TargetPrefixed(targets))
}

func TestReadTarget_NoHeader(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "target.bed", "X\t10\t20\n")
	targets, err := ReadTarget(p)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.False(t, TargetPrefixed(targets))
}

func TestReadTarget_Empty(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "target.bed", "chrom\tstart\tend\n")
	_, err := ReadTarget(p)
	assert.Error(t, err)
}

func TestGCContent(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.fa", ">chr1 test\nGGCCAATTNN\n>chr2\nACGT\n")

	targets := []genome.Interval{
		{Chrom: "chr1", Start: 0, End: 4},
		{Chrom: "chr1", Start: 4, End: 10},
		{Chrom: "chr3", Start: 0, End: 2},
	}
	gc, err := GCContent(ref, targets)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, gc[targets[0]], 1e-12)
	assert.InDelta(t, 0.0, gc[targets[1]], 1e-12)
	assert.True(t, math.IsNaN(gc[targets[2]]))

	_, err = GCContent(ref, []genome.Interval{{Chrom: "chr2", Start: 0, End: 50}})
	assert.Error(t, err, "target past sequence end")
}

func TestGCContent_NamingMismatch(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.fa", ">1\nGCAT\n")
	iv := genome.Interval{Chrom: "chr1", Start: 0, End: 4}
	gc, err := GCContent(ref, []genome.Interval{iv})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, gc[iv], 1e-12)
}

func TestAnnotate_RemovesGapsAndRenamesMappability(t *testing.T) {
	targets := []genome.Interval{
		{Chrom: "chr1", Start: 0, End: 100},
		{Chrom: "chr1", Start: 200, End: 300},
		{Chrom: "chr1", Start: 500, End: 500},
		{Chrom: "chrX", Start: 1000, End: 1100},
	}
	in := Inputs{
		GC: func(genome.Interval) float64 { return 0.4 },
		Mappability: []genome.Hit{
			{Interval: genome.Interval{Chrom: "1", Start: 0, End: 50}, Value: 1},
			{Interval: genome.Interval{Chrom: "1", Start: 50, End: 100}, Value: 0.5},
			{Interval: genome.Interval{Chrom: "X", Start: 1000, End: 1100}, Value: 0.9},
		},
		Excluded: []genome.Interval{{Chrom: "1", Start: 250, End: 260}},
	}

	regions, err := NewAnnotator().Annotate(targets, in)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "chr1", regions[0].Chrom)
	assert.InDelta(t, 0.75, regions[0].Mappability, 1e-12)
	assert.Equal(t, 100, regions[0].Length())
	assert.Equal(t, "chrX", regions[1].Chrom)
	assert.InDelta(t, 0.9, regions[1].Mappability, 1e-12)
}

func TestAnnotate_EmptyResult(t *testing.T) {
	targets := []genome.Interval{{Chrom: "chr1", Start: 0, End: 100}}
	in := Inputs{
		GC:       func(genome.Interval) float64 { return 0.4 },
		Excluded: []genome.Interval{{Chrom: "chr1", Start: 0, End: 1000}},
	}
	_, err := NewAnnotator().Annotate(targets, in)
	assert.True(t, errors.Is(err, ErrEmptyAnnotation))
}

func TestAnnotateFiles_RoundTripTable(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "target.bed", "chr1\t0\t4\nchr1\t4\t8\n")
	ref := writeFile(t, dir, "ref.fa", ">chr1\nGGCCAATT\n")
	mapp := writeFile(t, dir, "map.bedgraph", "chr1\t0\t8\t1.0\n")
	gap := writeFile(t, dir, "gap.txt", "chrom\tchromStart\tchromEnd\nchr1\t6\t7\n")
	centro := writeFile(t, dir, "centro.txt", "chrom\tchromStart\tchromEnd\nchr2\t0\t10\n")

	regions, err := NewAnnotator().AnnotateFiles(target, ref, mapp, gap, centro)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.InDelta(t, 1.0, regions[0].GC, 1e-12)

	out := filepath.Join(dir, "annotated.txt")
	require.NoError(t, WriteTable(out, regions))
	back, err := ReadTable(out)
	require.NoError(t, err)
	assert.Equal(t, regions, back)
}

func TestAnnotateFiles_DropsInvertedAndNegativeTargets(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "target.bed", "chr1\t0\t10\nchr1\t30\t20\nchr1\t-5\t5\n")
	ref := writeFile(t, dir, "ref.fa", ">chr1\nGGGGGCCCCCAAAAATTTTTGGGGGCCCCCAAAAATTTTT\n")
	mapp := writeFile(t, dir, "map.bedgraph", "chr1\t0\t40\t1.0\n")
	gap := writeFile(t, dir, "gap.txt", "chrom\tchromStart\tchromEnd\nchr2\t0\t10\n")

	regions, err := NewAnnotator().AnnotateFiles(target, ref, mapp, gap)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, genome.Interval{Chrom: "chr1", Start: 0, End: 10}, regions[0].Interval)
	assert.InDelta(t, 1.0, regions[0].GC, 1e-12)
	assert.InDelta(t, 1.0, regions[0].Mappability, 1e-12)
}

func TestGCContent_SkipsInvalidTargets(t *testing.T) {
	ref := writeFile(t, t.TempDir(), "ref.fa", ">chr1\nGGCCAATT\n")
	inverted := genome.Interval{Chrom: "chr1", Start: 6, End: 2}
	negative := genome.Interval{Chrom: "chr1", Start: -2, End: 4}
	valid := genome.Interval{Chrom: "chr1", Start: 0, End: 4}

	gc, err := GCContent(ref, []genome.Interval{inverted, negative, valid})
	require.NoError(t, err)
	assert.NotContains(t, gc, inverted)
	assert.NotContains(t, gc, negative)
	assert.InDelta(t, 1.0, gc[valid], 1e-12)
}
