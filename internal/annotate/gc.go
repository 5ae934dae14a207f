package annotate

import (
	"fmt"
	"math"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// GCContent computes the G+C fraction of every target from a reference
// FASTA, streaming one chromosome at a time. The fraction is taken over the
// full target length, so N bases count in the denominator. Targets on
// chromosomes absent from the reference get NaN. Invalid targets are left
// out of the result.
func GCContent(fastaPath string, targets []genome.Interval) (map[genome.Interval]float64, error) {
	byChrom := make(map[string][]genome.Interval)
	for _, t := range targets {
		if !t.Valid() {
			continue
		}
		byChrom[t.Chrom] = append(byChrom[t.Chrom], t)
	}

	rc, err := tsv.OpenStream(fastaPath)
	if err != nil {
		return nil, fmt.Errorf("open reference: %w", err)
	}
	defer rc.Close()

	gc := make(map[genome.Interval]float64, len(targets))
	sc := seqio.NewScanner(fasta.NewReader(rc, linear.NewSeq("", nil, alphabet.DNA)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		name := s.Name()
		chromTargets, ok := byChrom[name]
		if !ok {
			// Reference and target may disagree on the "chr" prefix.
			name = genome.WithNaming(name, !genome.HasChrPrefix(name))
			if chromTargets, ok = byChrom[name]; !ok {
				continue
			}
		}
		for _, t := range chromTargets {
			if t.End > len(s.Seq) {
				return nil, fmt.Errorf("target %s extends past the end of reference sequence %s (%d bp)", t, s.Name(), len(s.Seq))
			}
			gc[t] = gcFraction(s.Seq[t.Start:t.End])
		}
		delete(byChrom, name)
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("read reference: %w", err)
	}

	for _, missing := range byChrom {
		for _, t := range missing {
			gc[t] = math.NaN()
		}
	}
	return gc, nil
}

func gcFraction(letters alphabet.Letters) float64 {
	if len(letters) == 0 {
		return math.NaN()
	}
	var n int
	for _, l := range letters {
		switch l {
		case 'G', 'C', 'g', 'c':
			n++
		}
	}
	return float64(n) / float64(len(letters))
}
