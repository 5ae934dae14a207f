package vcf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/inodb/vibe-cnv/internal/caller"
)

// Writer writes one sample's CNV records in VCF 4.4.
type Writer struct {
	w         *bufio.Writer
	sample    string
	reference string
	date      time.Time
	tiers     caller.Tiers
}

// NewWriter creates a VCF writer for sample. An empty reference is written
// as "unspecified".
func NewWriter(w io.Writer, sample, reference string, date time.Time, tiers caller.Tiers) *Writer {
	if reference == "" {
		reference = "unspecified"
	}
	return &Writer{
		w:         bufio.NewWriter(w),
		sample:    sample,
		reference: reference,
		date:      date,
		tiers:     tiers,
	}
}

// HeaderLines returns the meta-information lines and the #CHROM line.
func (vw *Writer) HeaderLines() []string {
	return []string{
		"##fileformat=VCFv4.4",
		"##fileDate=" + vw.date.Format("20060102"),
		"##source=vibe-cnv",
		"##reference=" + vw.reference,
		`##ALT=<ID=DEL,Description="Deletion">`,
		`##ALT=<ID=DUP,Description="Duplication">`,
		fmt.Sprintf(`##FILTER=<ID=%s,Description="High-quality calls with CS higher than %g">`, caller.FilterPass, vw.tiers.High),
		fmt.Sprintf(`##FILTER=<ID=%s,Description="Calls with CS between %g and %g">`, caller.FilterMedium, vw.tiers.Medium, vw.tiers.High),
		fmt.Sprintf(`##FILTER=<ID=%s,Description="Calls with CS lower than %g">`, caller.FilterLow, vw.tiers.Medium),
		`##QUAL=<ID=PQS,Number=1,Type=Float,Description="Phred-scaled quality score of the probability of a wrong CNV type assignment">`,
		`##INFO=<ID=END,Number=1,Type=Integer,Description="End position of the structural variant described in this record">`,
		`##INFO=<ID=IMPRECISE,Number=0,Type=Flag,Description="Imprecise structural variation">`,
		`##INFO=<ID=SVLEN,Number=1,Type=Integer,Description="Length of structural variant">`,
		`##INFO=<ID=SVCLAIM,Number=1,Type=String,Description="D for claiming read depth based structural variant calling">`,
		`##INFO=<ID=SVTYPE,Number=1,Type=String,Description="Type of structural variant">`,
		`##FORMAT=<ID=GT,Number=1,Type=String,Description="Window Genotype">`,
		`##FORMAT=<ID=CN,Number=1,Type=Integer,Description="Copy number inferred by majority voting of region calls over the window">`,
		`##FORMAT=<ID=MNRC,Number=1,Type=Float,Description="Median NRC_poolNorm over encompassing target regions">`,
		`##FORMAT=<ID=CS,Number=1,Type=Float,Description="Confidence score of window copy-number call">`,
		strings.Join([]string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT", vw.sample}, "\t"),
	}
}

// WriteHeader writes the header block.
func (vw *Writer) WriteHeader() error {
	for _, line := range vw.HeaderLines() {
		if _, err := vw.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Write writes one record line.
func (vw *Writer) Write(r *Record) error {
	_, err := vw.w.WriteString(r.Line() + "\n")
	return err
}

// Flush flushes the underlying writer.
func (vw *Writer) Flush() error {
	return vw.w.Flush()
}
