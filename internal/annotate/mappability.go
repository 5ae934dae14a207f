package annotate

import (
	"fmt"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

var mappabilityColumns = []string{"chrom", "start", "end", "mapp"}

// ReadMappability reads a bedGraph mappability track (chrom, start, end,
// score), with or without a header.
func ReadMappability(path string) ([]genome.Hit, error) {
	r, err := tsv.OpenBED(path, mappabilityColumns)
	if err != nil {
		return nil, fmt.Errorf("open mappability: %w", err)
	}
	defer r.Close()

	if err := r.Require(mappabilityColumns...); err != nil {
		return nil, err
	}

	var hits []genome.Hit
	err = r.ForEach(func(rec tsv.Record) error {
		start, err := rec.Int("start")
		if err != nil {
			return err
		}
		end, err := rec.Int("end")
		if err != nil {
			return err
		}
		v, err := rec.Float("mapp")
		if err != nil {
			return err
		}
		hits = append(hits, genome.Hit{
			Interval: genome.Interval{Chrom: rec.Get("chrom"), Start: start, End: end},
			Value:    v,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read mappability: %w", err)
	}
	return hits, nil
}
