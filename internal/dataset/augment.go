package dataset

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/stats"
)

// DDUPMappability is the mappability an autosomal exon must exceed to be
// used as a multi-duplication example.
const DDUPMappability = 0.99

// DDUPCandidates selects multi-duplication examples from a mixture sample:
// autosomal rows with mappability above DDUPMappability whose ratio is above
// the median of that subset. Selected rows are labelled MultiDuplication.
func DDUPCandidates(rows []Row) []Row {
	var high []Row
	var values []float64
	for _, r := range rows {
		if genome.IsSex(r.Chrom) || !(r.Mappability > DDUPMappability) {
			continue
		}
		high = append(high, r)
		values = append(values, r.NRC)
	}
	m := stats.Median(values)
	if math.IsNaN(m) {
		return nil
	}
	var out []Row
	for _, r := range high {
		if r.NRC > m {
			r.Class = MultiDuplication
			out = append(out, r)
		}
	}
	return out
}

// Subsample returns at most n rows drawn without replacement, in their
// original order. Rows are returned unchanged when there are n or fewer.
func Subsample(rows []Row, n int, rng *rand.Rand) []Row {
	if n < 0 {
		n = 0
	}
	if len(rows) <= n {
		return rows
	}
	idx := rng.Perm(len(rows))[:n]
	sort.Ints(idx)
	out := make([]Row, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// CapToXLR bounds a synthetic subset to a third of the real XLR subset.
func CapToXLR(synthetic []Row, xlrRows int, rng *rand.Rand) []Row {
	return Subsample(synthetic, xlrRows/3, rng)
}

// MergeSimulated appends simulated double-deletion rows to an XLR training
// table, subsampled to the number of deletion rows already present.
func MergeSimulated(xlr, simulated []Row, rng *rand.Rand) ([]Row, error) {
	var sims []Row
	for _, r := range simulated {
		if r.Class == DoubleDeletion {
			sims = append(sims, r)
		}
	}
	if len(sims) == 0 {
		return nil, fmt.Errorf("simulated table has no class %d rows", DoubleDeletion)
	}
	n := CountClasses(xlr)[Deletion]
	out := make([]Row, 0, len(xlr)+n)
	out = append(out, xlr...)
	return append(out, Subsample(sims, n, rng)...), nil
}

// AddNoise returns the clean rows followed by a noisy copy of each, with
// Gaussian noise added to GC content and ratio. Length is derived from the
// coordinates and is left unchanged.
func AddNoise(rows []Row, mu, sigma float64, rng *rand.Rand) []Row {
	normal := distuv.Normal{Mu: mu, Sigma: sigma, Src: rng}
	out := make([]Row, 0, 2*len(rows))
	for _, r := range rows {
		r.Noisy = false
		out = append(out, r)
	}
	for _, r := range rows {
		r.GC += normal.Rand()
		r.NRC += normal.Rand()
		r.Noisy = true
		out = append(out, r)
	}
	return out
}

// SplitNoisy separates clean and noisy rows.
func SplitNoisy(rows []Row) (clean, noisy []Row) {
	for _, r := range rows {
		if r.Noisy {
			noisy = append(noisy, r)
		} else {
			clean = append(clean, r)
		}
	}
	return clean, noisy
}
