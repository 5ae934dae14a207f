// Package stats holds the order statistics shared by the normalizer, the
// scalers, and the call summaries.
package stats

import (
	"math"
	"sort"
)

// finiteSorted returns a sorted copy of the non-NaN, finite values.
func finiteSorted(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// Median returns the median of the finite values in x, averaging the two
// middle values for even counts. It returns NaN when x has no finite values.
func Median(x []float64) float64 {
	return Percentile(x, 0.5)
}

// Percentile returns the p-quantile (0 <= p <= 1) of the finite values in x
// using linear interpolation between closest ranks.
func Percentile(x []float64, p float64) float64 {
	return percentileSorted(finiteSorted(x), p)
}

// Percentiles computes several quantiles with a single sort.
func Percentiles(x []float64, ps ...float64) []float64 {
	s := finiteSorted(x)
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = percentileSorted(s, p)
	}
	return out
}

func percentileSorted(s []float64, p float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[len(s)-1]
	}
	h := p * float64(len(s)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(s) {
		return s[i]
	}
	return s[i] + (h-lo)*(s[i+1]-s[i])
}

// MeanAbsDev returns the mean absolute deviation of x around its mean,
// ignoring non-finite values. NaN when x has no finite values.
func MeanAbsDev(x []float64) float64 {
	var sum float64
	var n int
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	mean := sum / float64(n)
	var dev float64
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		dev += math.Abs(v - mean)
	}
	return dev / float64(n)
}
