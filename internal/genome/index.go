package genome

import (
	"fmt"
	"math"
	"sort"

	"github.com/biogo/store/interval"
	"github.com/biogo/store/step"
)

// Index answers overlap queries against a fixed set of intervals using one
// interval tree per chromosome. Intervals are loaded once and never modified
// after build.
type Index struct {
	trees map[string]*interval.IntTree
	n     int
}

// Hit is an indexed interval returned by an overlap query, with its payload.
type Hit struct {
	Interval
	Value float64
}

type entry struct {
	hit Hit
	id  uintptr
}

func (e *entry) Overlap(b interval.IntRange) bool { return e.hit.End > b.Start && e.hit.Start < b.End }
func (e *entry) ID() uintptr                      { return e.id }
func (e *entry) Range() interval.IntRange {
	return interval.IntRange{Start: e.hit.Start, End: e.hit.End}
}

type query struct{ start, end int }

func (q query) Overlap(b interval.IntRange) bool { return q.end > b.Start && q.start < b.End }

// NewIndex builds an index over ivs. Empty intervals are skipped.
func NewIndex(ivs []Interval) (*Index, error) {
	hits := make([]Hit, len(ivs))
	for i, iv := range ivs {
		hits[i] = Hit{Interval: iv, Value: math.NaN()}
	}
	return NewValueIndex(hits)
}

// NewValueIndex builds an index over intervals carrying a numeric payload,
// such as a mappability track.
func NewValueIndex(hits []Hit) (*Index, error) {
	idx := &Index{trees: make(map[string]*interval.IntTree)}
	for _, h := range hits {
		if !h.Valid() {
			continue
		}
		t, ok := idx.trees[h.Chrom]
		if !ok {
			t = &interval.IntTree{}
			idx.trees[h.Chrom] = t
		}
		idx.n++
		if err := t.Insert(&entry{hit: h, id: uintptr(idx.n)}, true); err != nil {
			return nil, fmt.Errorf("index %s: %w", h.Interval, err)
		}
	}
	for _, t := range idx.trees {
		t.AdjustRanges()
	}
	return idx, nil
}

// Len returns the number of indexed intervals.
func (x *Index) Len() int {
	return x.n
}

// Overlaps reports whether any indexed interval shares a base with iv.
func (x *Index) Overlaps(iv Interval) bool {
	t, ok := x.trees[iv.Chrom]
	if !ok {
		return false
	}
	found := false
	t.DoMatching(func(interval.IntInterface) (done bool) {
		found = true
		return true
	}, query{iv.Start, iv.End})
	return found
}

// Find returns all indexed intervals overlapping iv, ordered by start.
func (x *Index) Find(iv Interval) []Hit {
	t, ok := x.trees[iv.Chrom]
	if !ok {
		return nil
	}
	var hits []Hit
	t.DoMatching(func(e interval.IntInterface) (done bool) {
		hits = append(hits, e.(*entry).hit)
		return false
	}, query{iv.Start, iv.End})
	sort.Slice(hits, func(i, j int) bool { return hits[i].Start < hits[j].Start })
	return hits
}

// MeanValue returns the unweighted mean payload of the intervals overlapping
// iv, ignoring NaN payloads. ok is false when nothing overlaps.
func (x *Index) MeanValue(iv Interval) (mean float64, ok bool) {
	var sum float64
	var n int
	for _, h := range x.Find(iv) {
		if math.IsNaN(h.Value) {
			continue
		}
		sum += h.Value
		n++
	}
	if n == 0 {
		return math.NaN(), false
	}
	return sum / float64(n), true
}

type covered bool

func (c covered) Equal(e step.Equaler) bool { return c == e.(covered) }

// Merge returns the union of ivs as sorted, non-overlapping intervals.
// Book-ended intervals are joined.
func Merge(ivs []Interval) ([]Interval, error) {
	vecs := make(map[string]*step.Vector)
	for _, iv := range ivs {
		if !iv.Valid() {
			continue
		}
		vec, ok := vecs[iv.Chrom]
		if !ok {
			var err error
			vec, err = step.New(iv.Start, iv.End, covered(false))
			if err != nil {
				return nil, fmt.Errorf("merge %s: %w", iv, err)
			}
			vec.Relaxed = true
			vecs[iv.Chrom] = vec
		}
		vec.SetRange(iv.Start, iv.End, covered(true))
	}

	var out []Interval
	for chrom, vec := range vecs {
		vec.Do(func(start, end int, e step.Equaler) {
			if e.(covered) {
				out = append(out, Interval{Chrom: chrom, Start: start, End: end})
			}
		})
	}
	SortIntervals(out)
	return out, nil
}

// Intersect returns the pieces of a that are covered by b, merged.
func Intersect(a, b []Interval) ([]Interval, error) {
	idx, err := NewIndex(b)
	if err != nil {
		return nil, err
	}
	var pieces []Interval
	for _, iv := range a {
		for _, h := range idx.Find(iv) {
			p := Interval{Chrom: iv.Chrom, Start: max(iv.Start, h.Start), End: min(iv.End, h.End)}
			if p.Valid() {
				pieces = append(pieces, p)
			}
		}
	}
	return Merge(pieces)
}
