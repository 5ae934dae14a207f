// Package normalize turns raw per-interval read signal into pool-normalized,
// log2-scaled, optionally median-recentred ratios.
package normalize

import (
	"fmt"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Signal table column names, as exported from the upstream normalized
// read-count matrix.
const (
	ColChrom = "chrom"
	ColStart = "start"
	ColEnd   = "end"
	ColCount = "RCNorm"
	ColClass = "Class"
)

// InTarget is the Class value of rows that belong to the target.
const InTarget = "IN"

// Signal is one interval's normalized read count for a sample or pool.
type Signal struct {
	genome.Interval
	Count float64
}

// ReadSignal reads a signal table. When a Class column is present only
// in-target rows are kept; out-of-target and ambiguous rows are dropped.
func ReadSignal(path string) ([]Signal, error) {
	r, err := tsv.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signal: %w", err)
	}
	defer r.Close()

	if err := r.Require(ColChrom, ColStart, ColEnd, ColCount); err != nil {
		return nil, err
	}
	hasClass := r.Has(ColClass)

	var out []Signal
	err = r.ForEach(func(rec tsv.Record) error {
		if hasClass && rec.Get(ColClass) != InTarget {
			return nil
		}
		start, err := rec.Int(ColStart)
		if err != nil {
			return err
		}
		end, err := rec.Int(ColEnd)
		if err != nil {
			return err
		}
		c, err := rec.Float(ColCount)
		if err != nil {
			return err
		}
		out = append(out, Signal{
			Interval: genome.Interval{Chrom: rec.Get(ColChrom), Start: start, End: end},
			Count:    c,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read signal %s: %w", path, err)
	}
	return out, nil
}
