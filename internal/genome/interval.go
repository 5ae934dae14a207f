// Package genome provides genomic intervals, chromosome naming helpers,
// natural chromosome ordering, and per-chromosome overlap indexes.
package genome

import (
	"fmt"
	"strings"
)

// Interval is a half-open genomic interval [Start, End) on Chrom.
type Interval struct {
	Chrom string
	Start int
	End   int
}

// Len returns End-Start.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Valid reports whether the interval is non-empty and starts at or after 0.
func (iv Interval) Valid() bool {
	return iv.Chrom != "" && iv.Start >= 0 && iv.Start < iv.End
}

// Overlaps reports whether iv and o share at least one base.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Chrom == o.Chrom && iv.Start < o.End && o.Start < iv.End
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", iv.Chrom, iv.Start, iv.End)
}

// HasChrPrefix reports whether the chromosome name carries a "chr" prefix,
// in any letter case.
func HasChrPrefix(chrom string) bool {
	return len(chrom) >= 3 && strings.EqualFold(chrom[:3], "chr")
}

// StripChr removes a leading "chr" prefix.
func StripChr(chrom string) string {
	if HasChrPrefix(chrom) {
		return chrom[3:]
	}
	return chrom
}

// WithNaming rewrites chrom to carry (or not carry) the "chr" prefix.
func WithNaming(chrom string, prefixed bool) string {
	if prefixed {
		if HasChrPrefix(chrom) {
			return chrom
		}
		return "chr" + chrom
	}
	return StripChr(chrom)
}

// IsX reports whether chrom names the X chromosome (chrX, ChrX, X, ...).
func IsX(chrom string) bool {
	return strings.EqualFold(StripChr(chrom), "X")
}

// IsY reports whether chrom names the Y chromosome.
func IsY(chrom string) bool {
	return strings.EqualFold(StripChr(chrom), "Y")
}

// IsSex reports whether chrom is X or Y.
func IsSex(chrom string) bool {
	return IsX(chrom) || IsY(chrom)
}
