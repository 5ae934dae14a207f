package annotate

import (
	"fmt"
	"unicode"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

var targetColumns = []string{"chrom", "start", "end"}

// ReadTarget reads a raw target definition, keeping only its first three
// columns. If the third column of the first row contains a letter the row
// is a header and is dropped. Targets are returned sorted.
func ReadTarget(path string) ([]genome.Interval, error) {
	rc, err := tsv.OpenStream(path)
	if err != nil {
		return nil, fmt.Errorf("open target: %w", err)
	}
	defer rc.Close()

	r := tsv.NewHeaderlessReader(rc, targetColumns)
	var targets []genome.Interval
	first := true
	err = r.ForEach(func(rec tsv.Record) error {
		if first {
			first = false
			if hasLetter(rec.Get("end")) {
				return nil
			}
		}
		start, err := rec.Int("start")
		if err != nil {
			return err
		}
		end, err := rec.Int("end")
		if err != nil {
			return err
		}
		targets = append(targets, genome.Interval{Chrom: rec.Get("chrom"), Start: start, End: end})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read target %s: %w", path, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("target %s has no regions: check that it is properly formatted", path)
	}
	genome.SortIntervals(targets)
	return targets, nil
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// TargetPrefixed reports whether the target uses "chr"-prefixed chromosome
// names, judged from its first region.
func TargetPrefixed(targets []genome.Interval) bool {
	return len(targets) > 0 && genome.HasChrPrefix(targets[0].Chrom)
}
