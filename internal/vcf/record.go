// Package vcf converts window-level copy-number calls into VCF records and
// reads them back.
package vcf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one CNV call as written to a VCF body line.
type Record struct {
	Chrom string // Chromosome name as in the window table
	Pos   int64  // Base preceding the event
	ID    string
	Alt   string  // DEL or DUP
	Qual  float64 // Phred quality, NaN when unscored
	// Filter is PASS, MediumQual or LowQual.
	Filter string
	End    int64
	SVLen  int64
	CN     int
	MNRC   float64 // median NRC over the window
	CS     float64 // window call probability
}

// HasQual reports whether the record carries a quality score.
func (r *Record) HasQual() bool {
	return !math.IsNaN(r.Qual)
}

// Info returns the INFO column.
func (r *Record) Info() string {
	return fmt.Sprintf("END=%d;IMPRECISE;SVLEN=%d;SVTYPE=CNV;SVCLAIM=D", r.End, r.SVLen)
}

// Line formats the record without a trailing newline.
func (r *Record) Line() string {
	var lb strings.Builder
	lb.Grow(160)
	lb.WriteString(r.Chrom)
	lb.WriteByte('\t')
	lb.WriteString(strconv.FormatInt(r.Pos, 10))
	lb.WriteByte('\t')
	lb.WriteString(r.ID)
	lb.WriteString("\t.\t<")
	lb.WriteString(r.Alt)
	lb.WriteString(">\t")
	if r.HasQual() {
		lb.WriteString(strconv.FormatFloat(r.Qual, 'f', 2, 64))
	} else {
		lb.WriteByte('.')
	}
	lb.WriteByte('\t')
	lb.WriteString(r.Filter)
	lb.WriteByte('\t')
	lb.WriteString(r.Info())
	lb.WriteString("\tGT:CN:MNRC:CS\t.:")
	lb.WriteString(strconv.Itoa(r.CN))
	lb.WriteByte(':')
	lb.WriteString(strconv.FormatFloat(r.MNRC, 'f', 2, 64))
	lb.WriteByte(':')
	lb.WriteString(strconv.FormatFloat(r.CS, 'f', 2, 64))
	return lb.String()
}
