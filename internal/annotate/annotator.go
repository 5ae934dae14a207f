// Package annotate attaches GC content, mappability and length to target
// intervals and removes assembly gaps and centromeres.
package annotate

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/genome"
)

// ErrEmptyAnnotation is returned when no target survives annotation, which
// usually means mismatched genome builds or a malformed target.
var ErrEmptyAnnotation = errors.New("no target regions left after annotation: check that the target is not empty and matches the reference build")

// Region is an annotated target interval. Length is derived from the
// coordinates.
type Region struct {
	genome.Interval
	GC          float64
	Mappability float64
}

// Length returns End-Start.
func (r Region) Length() int {
	return r.Len()
}

// GCLookup returns the GC fraction of a target interval.
type GCLookup func(genome.Interval) float64

// Inputs are the resources a target is annotated against.
type Inputs struct {
	GC          GCLookup
	Mappability []genome.Hit
	// Excluded holds assembly gaps and centromeres.
	Excluded []genome.Interval
}

// Annotator annotates target intervals.
type Annotator struct {
	logger *zap.Logger
}

// NewAnnotator creates a new annotator.
func NewAnnotator() *Annotator {
	return &Annotator{logger: zap.NewNop()}
}

// SetLogger sets the logger for warning and info messages.
func (a *Annotator) SetLogger(l *zap.Logger) {
	a.logger = l
}

// Annotate computes GC content, mean mappability and length for every
// non-empty target that does not overlap an excluded region. Mappability
// and excluded regions are renamed to the target's chromosome naming before
// any overlap test.
func (a *Annotator) Annotate(targets []genome.Interval, in Inputs) ([]Region, error) {
	if len(targets) == 0 {
		return nil, ErrEmptyAnnotation
	}
	prefixed := TargetPrefixed(targets)

	mapp := in.Mappability
	if len(mapp) > 0 && genome.HasChrPrefix(mapp[0].Chrom) != prefixed {
		a.logger.Info("renaming mappability chromosomes to match target",
			zap.Bool("chr_prefix", prefixed))
		renamed := make([]genome.Hit, len(mapp))
		for i, h := range mapp {
			h.Chrom = genome.WithNaming(h.Chrom, prefixed)
			renamed[i] = h
		}
		mapp = renamed
	}
	mappIdx, err := genome.NewValueIndex(mapp)
	if err != nil {
		return nil, fmt.Errorf("index mappability: %w", err)
	}

	excluded := in.Excluded
	if len(excluded) > 0 && genome.HasChrPrefix(excluded[0].Chrom) != prefixed {
		excluded = genome.Rename(excluded, prefixed)
	}
	gapIdx, err := genome.NewIndex(excluded)
	if err != nil {
		return nil, fmt.Errorf("index gaps: %w", err)
	}

	regions := make([]Region, 0, len(targets))
	var skippedEmpty, skippedGap, noMapp int
	for _, t := range targets {
		if !t.Valid() {
			skippedEmpty++
			continue
		}
		if gapIdx.Overlaps(t) {
			skippedGap++
			continue
		}
		m, ok := mappIdx.MeanValue(t)
		if !ok {
			noMapp++
		}
		regions = append(regions, Region{Interval: t, GC: in.GC(t), Mappability: m})
	}

	a.logger.Info("annotation completed",
		zap.Int("targets", len(targets)),
		zap.Int("annotated", len(regions)),
		zap.Int("skipped_empty", skippedEmpty),
		zap.Int("skipped_gap", skippedGap),
		zap.Int("no_mappability", noMapp))

	if len(regions) == 0 {
		return nil, ErrEmptyAnnotation
	}
	return regions, nil
}

// AnnotateFiles runs the full annotation from file paths: target,
// reference FASTA, bedGraph mappability, and any number of gap or
// centromere tables.
func (a *Annotator) AnnotateFiles(targetPath, refPath, mappPath string, excludedPaths ...string) ([]Region, error) {
	targets, err := ReadTarget(targetPath)
	if err != nil {
		return nil, err
	}

	gc, err := GCContent(refPath, targets)
	if err != nil {
		return nil, err
	}

	mapp, err := ReadMappability(mappPath)
	if err != nil {
		return nil, err
	}

	var excluded []genome.Interval
	for _, p := range excludedPaths {
		if p == "" {
			continue
		}
		ivs, err := genome.ReadRegions(p)
		if err != nil {
			return nil, err
		}
		excluded = append(excluded, ivs...)
	}

	return a.Annotate(targets, Inputs{
		GC:          func(iv genome.Interval) float64 { return gc[iv] },
		Mappability: mapp,
		Excluded:    excluded,
	})
}
