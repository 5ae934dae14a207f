package dataset

import (
	"fmt"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/integrity"
)

// Subset names.
const (
	SubsetXLR      = "XLR"
	SubsetSegDup   = "SegDup"
	SubsetNoSegDup = "noSegDup"
	SubsetDDUP     = "DDUP"
)

// Resources are the region sets chrX is partitioned against.
type Resources struct {
	PAR    []genome.Interval
	XLR    []genome.Interval
	SegDup []genome.Interval
}

// ReadResources loads the PAR, XLR and segmental duplication region files.
func ReadResources(parPath, xlrPath, segdupPath string) (Resources, error) {
	var res Resources
	var err error
	if res.PAR, err = genome.ReadRegions(parPath); err != nil {
		return res, fmt.Errorf("read PAR: %w", err)
	}
	if res.XLR, err = genome.ReadRegions(xlrPath); err != nil {
		return res, fmt.Errorf("read XLR: %w", err)
	}
	if res.SegDup, err = genome.ReadRegions(segdupPath); err != nil {
		return res, fmt.Errorf("read segmental duplications: %w", err)
	}
	return res, nil
}

// Partition holds the three disjoint chrX subsets of one sample.
type Partition struct {
	XLR      []Row
	SegDup   []Row
	NoSegDup []Row
}

// Partitioner splits chrX rows into XLR, SegDup and noSegDup.
type Partitioner struct {
	par    *genome.Index
	xlr    *genome.Index
	segdup *genome.Index
}

// NewPartitioner prepares the region indexes. Resource chromosomes are
// renamed to the target's naming. XLR regions are restricted to the target
// and merged; segmental duplications are merged.
func NewPartitioner(targets []genome.Interval, res Resources) (*Partitioner, error) {
	prefixed := len(targets) > 0 && genome.HasChrPrefix(targets[0].Chrom)
	rename := func(ivs []genome.Interval) []genome.Interval {
		if len(ivs) > 0 && genome.HasChrPrefix(ivs[0].Chrom) != prefixed {
			return genome.Rename(ivs, prefixed)
		}
		return ivs
	}

	xlrOnTarget, err := genome.Intersect(rename(res.XLR), targets)
	if err != nil {
		return nil, err
	}
	if xlrOnTarget, err = genome.Merge(xlrOnTarget); err != nil {
		return nil, err
	}
	segdup, err := genome.Merge(rename(res.SegDup))
	if err != nil {
		return nil, err
	}

	p := &Partitioner{}
	if p.par, err = genome.NewIndex(rename(res.PAR)); err != nil {
		return nil, err
	}
	if p.xlr, err = genome.NewIndex(xlrOnTarget); err != nil {
		return nil, err
	}
	if p.segdup, err = genome.NewIndex(segdup); err != nil {
		return nil, err
	}
	return p, nil
}

// Assign returns the subset of a single row, or "" when the row is not on
// chrX or lies in a pseudo-autosomal region. XLR takes priority over SegDup.
func (p *Partitioner) Assign(iv genome.Interval) string {
	switch {
	case !genome.IsX(iv.Chrom), p.par.Overlaps(iv):
		return ""
	case p.xlr.Overlaps(iv):
		return SubsetXLR
	case p.segdup.Overlaps(iv):
		return SubsetSegDup
	default:
		return SubsetNoSegDup
	}
}

// Split partitions a sample's rows. Every subset must be non-empty.
func (p *Partitioner) Split(sample string, rows []Row) (Partition, error) {
	var out Partition
	for _, r := range rows {
		switch p.Assign(r.Interval) {
		case SubsetXLR:
			out.XLR = append(out.XLR, r)
		case SubsetSegDup:
			out.SegDup = append(out.SegDup, r)
		case SubsetNoSegDup:
			out.NoSegDup = append(out.NoSegDup, r)
		}
	}

	for _, s := range []struct {
		name string
		rows []Row
		hint string
	}{
		{SubsetXLR, out.XLR, "check that the XLR file is not empty and matches the target"},
		{SubsetNoSegDup, out.NoSegDup, "check that the segmental duplication file is properly formatted"},
		{SubsetSegDup, out.SegDup, "check that the segmental duplication file is not empty and properly formatted"},
	} {
		if len(s.rows) == 0 {
			return out, &integrity.EmptyError{Stage: "chrX partition", Subset: s.name, Sample: sample, Hint: s.hint}
		}
	}
	return out, nil
}
