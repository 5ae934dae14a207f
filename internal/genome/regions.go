package genome

import (
	"fmt"

	"github.com/inodb/vibe-cnv/internal/tsv"
)

// bedColumns names the leading columns of a headerless BED file.
var bedColumns = []string{"chrom", "chromStart", "chromEnd"}

// coordinate column aliases accepted in headed region files, in priority order.
var (
	chromAliases = []string{"chrom", "Chr", "chr", "Chromosome", "#chrom"}
	startAliases = []string{"chromStart", "Start", "start"}
	endAliases   = []string{"chromEnd", "End", "end"}
)

func firstPresent(r *tsv.Reader, names []string) string {
	for _, n := range names {
		if r.Has(n) {
			return n
		}
	}
	return ""
}

// ReadRegions reads a region set from a BED file or a UCSC-style table with
// chrom/chromStart/chromEnd header columns (gap and centromere tables).
func ReadRegions(path string) ([]Interval, error) {
	r, err := tsv.OpenBED(path, bedColumns)
	if err != nil {
		return nil, fmt.Errorf("read regions: %w", err)
	}
	defer r.Close()

	chromCol := firstPresent(r, chromAliases)
	startCol := firstPresent(r, startAliases)
	endCol := firstPresent(r, endAliases)
	if chromCol == "" || startCol == "" || endCol == "" {
		return nil, &tsv.ParseError{
			Path:    path,
			Line:    r.LineNumber(),
			Message: "region file needs chrom, start and end columns",
		}
	}

	var out []Interval
	err = r.ForEach(func(rec tsv.Record) error {
		start, err := rec.Int(startCol)
		if err != nil {
			return err
		}
		end, err := rec.Int(endCol)
		if err != nil {
			return err
		}
		out = append(out, Interval{Chrom: rec.Get(chromCol), Start: start, End: end})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rename returns a copy of ivs with every chromosome rewritten to the given
// naming convention.
func Rename(ivs []Interval, prefixed bool) []Interval {
	out := make([]Interval, len(ivs))
	for i, iv := range ivs {
		iv.Chrom = WithNaming(iv.Chrom, prefixed)
		out[i] = iv
	}
	return out
}
