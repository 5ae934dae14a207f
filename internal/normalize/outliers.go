package normalize

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/stats"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// DefaultMADThreshold is the spread above which a sample is an outlier.
const DefaultMADThreshold = 0.1

// Segment table columns.
const (
	SegChrom = "Chromosome"
	SegMean  = "SegMean"
)

// Spread is one sample's signal dispersion.
type Spread struct {
	Sample  string
	MAD     float64
	Outlier bool
}

// SegmentValues reads the segment-mean column of a segmentation table,
// skipping chrX rows.
func SegmentValues(path string) ([]float64, error) {
	r, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if err := r.Require(SegChrom, SegMean); err != nil {
		return nil, err
	}
	var out []float64
	err = r.ForEach(func(rec tsv.Record) error {
		if genome.IsX(rec.Get(SegChrom)) {
			return nil
		}
		v, err := rec.Float(SegMean)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// MADOutliers computes the mean absolute deviation of every sample's values
// and flags samples strictly above threshold. Results are sorted by sample.
func MADOutliers(values map[string][]float64, threshold float64) []Spread {
	out := make([]Spread, 0, len(values))
	for s, v := range values {
		m := stats.MeanAbsDev(v)
		out = append(out, Spread{Sample: s, MAD: m, Outlier: !(m <= threshold)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sample < out[j].Sample })
	return out
}

// SegmentDir loads <dir>/<sample>/HSLMResults_<sample>.txt for every
// sample subdirectory of dir.
func SegmentDir(dir string) (map[string][]float64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	values := make(map[string][]float64)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		v, err := SegmentValues(filepath.Join(dir, name, "HSLMResults_"+name+".txt"))
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}

// WriteSpreads writes every sample's spread to allPath and the samples at or
// under the threshold to keepPath.
func WriteSpreads(allPath, keepPath string, spreads []Spread) error {
	all, err := tsv.Create(allPath)
	if err != nil {
		return err
	}
	keep, err := tsv.Create(keepPath)
	if err != nil {
		all.Close()
		return err
	}
	header := []string{"samplename", "segmean_mads"}
	if err := all.WriteHeader(header...); err != nil {
		all.Close()
		keep.Close()
		return err
	}
	if err := keep.WriteHeader(header...); err != nil {
		all.Close()
		keep.Close()
		return err
	}
	for _, s := range spreads {
		if err := all.Write(s.Sample, tsv.Float(s.MAD)); err != nil {
			all.Close()
			keep.Close()
			return err
		}
		if s.Outlier {
			continue
		}
		if err := keep.Write(s.Sample, tsv.Float(s.MAD)); err != nil {
			all.Close()
			keep.Close()
			return err
		}
	}
	if err := all.Close(); err != nil {
		keep.Close()
		return err
	}
	return keep.Close()
}
