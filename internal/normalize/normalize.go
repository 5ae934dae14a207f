package normalize

import (
	"errors"
	"math"
	"sort"

	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/integrity"
	"github.com/inodb/vibe-cnv/internal/stats"
)

// Epsilon is added to both sample and pool counts before taking the ratio,
// so zero counts never yield an infinite log.
const Epsilon = 1e-10

// ErrRecentered is returned when a profile is recentred a second time.
var ErrRecentered = errors.New("ratios already recentred on autosomal median")

// Log2Ratio returns log2((s+ε)/(p+ε)). Non-finite results are NaN.
func Log2Ratio(s, p float64) float64 {
	r := math.Log2((s + Epsilon) / (p + Epsilon))
	if math.IsInf(r, 0) {
		return math.NaN()
	}
	return r
}

// Ratio is one interval present in both the sample and the pool.
type Ratio struct {
	genome.Interval
	Sample float64
	Pool   float64
	Value  float64 // log2 ratio, shifted once by Recenter
}

// Join inner-joins sample and pool signal on exact coordinates and computes
// the log2 ratio of every shared interval. Rows are returned in natural
// chromosome order. An empty join is an integrity error.
func Join(sampleID string, sample, pool []Signal) ([]Ratio, error) {
	byIv := make(map[genome.Interval]float64, len(pool))
	for _, p := range pool {
		if _, dup := byIv[p.Interval]; !dup {
			byIv[p.Interval] = p.Count
		}
	}

	out := make([]Ratio, 0, len(sample))
	for _, s := range sample {
		p, ok := byIv[s.Interval]
		if !ok {
			continue
		}
		out = append(out, Ratio{
			Interval: s.Interval,
			Sample:   s.Count,
			Pool:     p,
			Value:    Log2Ratio(s.Count, p),
		})
	}
	if len(out) == 0 {
		return nil, &integrity.EmptyError{
			Stage:  "pool join",
			Sample: sampleID,
			Hint:   "sample and pool share no target intervals",
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return genome.Less(out[i].Interval, out[j].Interval) })
	return out, nil
}

// AutosomalMedian returns the median of values on chromosomes other than X
// and Y, or NaN if there are none.
func AutosomalMedian(chroms []string, values []float64) float64 {
	auto := make([]float64, 0, len(values))
	for i, v := range values {
		if !genome.IsSex(chroms[i]) {
			auto = append(auto, v)
		}
	}
	return stats.Median(auto)
}

// Profile is a sample's pool-normalized ratios.
type Profile struct {
	Sample string
	Ratios []Ratio

	recentered bool
	median     float64
}

// NewProfile joins sample against pool.
func NewProfile(sampleID string, sample, pool []Signal) (*Profile, error) {
	ratios, err := Join(sampleID, sample, pool)
	if err != nil {
		return nil, err
	}
	return &Profile{Sample: sampleID, Ratios: ratios}, nil
}

// Values returns the current ratio values.
func (p *Profile) Values() []float64 {
	v := make([]float64, len(p.Ratios))
	for i, r := range p.Ratios {
		v[i] = r.Value
	}
	return v
}

// AutosomalMedian returns the median ratio over non-sex chromosomes.
func (p *Profile) AutosomalMedian() float64 {
	chroms := make([]string, len(p.Ratios))
	for i, r := range p.Ratios {
		chroms[i] = r.Chrom
	}
	return AutosomalMedian(chroms, p.Values())
}

// Recenter subtracts the autosomal median from every ratio, sex
// chromosomes included, and returns the median. It may be applied once.
func (p *Profile) Recenter() (float64, error) {
	if p.recentered {
		return p.median, ErrRecentered
	}
	m := p.AutosomalMedian()
	if math.IsNaN(m) {
		return m, &integrity.EmptyError{
			Stage:  "autosomal median",
			Sample: p.Sample,
			Hint:   "no autosomal intervals with a finite ratio",
		}
	}
	for i := range p.Ratios {
		p.Ratios[i].Value -= m
	}
	p.recentered = true
	p.median = m
	return m, nil
}

// Recentered reports whether Recenter has been applied.
func (p *Profile) Recentered() bool {
	return p.recentered
}
