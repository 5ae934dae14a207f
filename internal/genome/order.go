package genome

import (
	"sort"
	"strconv"
	"strings"
)

// chromKey splits a chromosome name into alternating text and digit runs,
// always starting with a (possibly empty) text run.
func chromKey(chrom string) []string {
	var runs []string
	var cur strings.Builder
	digits := false
	for _, r := range chrom {
		isDigit := r >= '0' && r <= '9'
		if isDigit != digits {
			runs = append(runs, cur.String())
			cur.Reset()
			digits = isDigit
		}
		cur.WriteRune(r)
	}
	return append(runs, cur.String())
}

// CompareChrom orders chromosome names naturally: digit runs compare as
// integers and text runs compare case-insensitively, so chr2 < chr10 < chrX.
func CompareChrom(a, b string) int {
	ka, kb := chromKey(a), chromKey(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if i%2 == 1 {
			na, _ := strconv.ParseUint(ka[i], 10, 64)
			nb, _ := strconv.ParseUint(kb[i], 10, 64)
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(strings.ToLower(ka[i]), strings.ToLower(kb[i])); c != 0 {
			return c
		}
	}
	switch {
	case len(ka) < len(kb):
		return -1
	case len(ka) > len(kb):
		return 1
	}
	return strings.Compare(a, b)
}

// Less orders intervals by natural chromosome order, then start, then end.
func Less(a, b Interval) bool {
	if c := CompareChrom(a.Chrom, b.Chrom); c != 0 {
		return c < 0
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.End < b.End
}

// SortIntervals sorts intervals in place by Less.
func SortIntervals(ivs []Interval) {
	sort.SliceStable(ivs, func(i, j int) bool { return Less(ivs[i], ivs[j]) })
}
