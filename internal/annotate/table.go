package annotate

import (
	"fmt"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Annotated target table column names.
const (
	ColChr         = "Chr"
	ColStart       = "Start"
	ColEnd         = "End"
	ColGC          = "GC_content"
	ColMappability = "Mappability"
	ColLength      = "Length"
)

// TableColumns is the header of the annotated target table.
var TableColumns = []string{ColChr, ColStart, ColEnd, ColGC, ColMappability, ColLength}

// WriteTable writes regions as an annotated target table.
func WriteTable(path string, regions []Region) error {
	w, err := tsv.Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(TableColumns...); err != nil {
		w.Close()
		return err
	}
	for _, r := range regions {
		if err := w.Write(
			r.Chrom, tsv.Int(r.Start), tsv.Int(r.End),
			tsv.Float(r.GC), tsv.Float(r.Mappability), tsv.Int(r.Length()),
		); err != nil {
			w.Close()
			return fmt.Errorf("write annotated target: %w", err)
		}
	}
	return w.Close()
}

// ReadTable reads an annotated target table. The Length column, if present,
// is ignored in favour of End-Start.
func ReadTable(path string) ([]Region, error) {
	r, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := r.Require(ColChr, ColStart, ColEnd, ColGC, ColMappability); err != nil {
		return nil, err
	}

	var regions []Region
	err = r.ForEach(func(rec tsv.Record) error {
		start, err := rec.Int(ColStart)
		if err != nil {
			return err
		}
		end, err := rec.Int(ColEnd)
		if err != nil {
			return err
		}
		gc, err := rec.Float(ColGC)
		if err != nil {
			return err
		}
		mapp, err := rec.Float(ColMappability)
		if err != nil {
			return err
		}
		regions = append(regions, Region{
			Interval:    genome.Interval{Chrom: rec.Get(ColChr), Start: start, End: end},
			GC:          gc,
			Mappability: mapp,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, ErrEmptyAnnotation
	}
	return regions, nil
}
