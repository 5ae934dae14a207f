// Package dataset assembles per-exon feature tables from annotated targets
// and pool-normalized signal, labels them for training, partitions chrX
// into its XLR/SegDup/noSegDup subsets and prepares train/test splits.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/inodb/vibe-cnv/internal/annotate"
	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/integrity"
	"github.com/inodb/vibe-cnv/internal/normalize"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Feature table column names.
const (
	ColChr         = annotate.ColChr
	ColStart       = annotate.ColStart
	ColEnd         = annotate.ColEnd
	ColGC          = annotate.ColGC
	ColMappability = annotate.ColMappability
	ColLength      = annotate.ColLength
	ColNRC         = "NRC_poolNorm"
	ColID          = "ID"
	ColClass       = "Class"
	ColNoisy       = "is_noisy"
)

// FeatureNames are the model inputs, in vector order.
var FeatureNames = []string{ColGC, ColLength, ColNRC}

// Row is one exon of one sample.
type Row struct {
	annotate.Region
	NRC   float64 // pool-normalized log2 ratio
	ID    string
	Class Class
	Noisy bool
}

// Features returns the model input vector.
func (r Row) Features() []float64 {
	return []float64{r.GC, float64(r.Length()), r.NRC}
}

// Table is a feature table. Class is only meaningful when Labeled is set.
type Table struct {
	Rows    []Row
	Labeled bool
	// Augmented tables carry an is_noisy column.
	Augmented bool

	recentered bool
	median     float64
}

// ErrRecentered is returned when a table is recentred twice.
var ErrRecentered = normalize.ErrRecentered

// Join attaches a sample's normalized ratios to the annotated regions they
// overlap. Ratios outside every region are dropped; the region
// with the exact same coordinates wins, otherwise the first overlapping one.
func Join(sampleID string, regions []annotate.Region, ratios []normalize.Ratio) ([]Row, error) {
	exact := make(map[genome.Interval]int, len(regions))
	hits := make([]genome.Hit, len(regions))
	for i, r := range regions {
		exact[r.Interval] = i
		hits[i] = genome.Hit{Interval: r.Interval, Value: float64(i)}
	}
	idx, err := genome.NewValueIndex(hits)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(ratios))
	for _, ra := range ratios {
		i, ok := exact[ra.Interval]
		if !ok {
			found := idx.Find(ra.Interval)
			if len(found) == 0 {
				continue
			}
			i = int(found[0].Value)
		}
		reg := regions[i]
		reg.Interval = ra.Interval
		rows = append(rows, Row{Region: reg, NRC: ra.Value, ID: sampleID})
	}
	if len(rows) == 0 {
		return nil, &integrity.EmptyError{
			Stage:  "target join",
			Sample: sampleID,
			Hint:   "normalized signal does not overlap the annotated target",
		}
	}
	return rows, nil
}

// RecenterAutosomal subtracts the median NRC over non-sex chromosomes from
// every row. A table can be recentred once.
func (t *Table) RecenterAutosomal() (float64, error) {
	if t.recentered {
		return t.median, ErrRecentered
	}
	chroms := make([]string, len(t.Rows))
	values := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		chroms[i] = r.Chrom
		values[i] = r.NRC
	}
	m := normalize.AutosomalMedian(chroms, values)
	if math.IsNaN(m) {
		sample := ""
		if len(t.Rows) > 0 {
			sample = t.Rows[0].ID
		}
		return m, &integrity.EmptyError{Stage: "autosomal median", Sample: sample}
	}
	for i := range t.Rows {
		t.Rows[i].NRC -= m
	}
	t.recentered = true
	t.median = m
	return m, nil
}

// Columns returns the header the table is written with.
func (t *Table) Columns() []string {
	cols := []string{ColChr, ColStart, ColEnd, ColGC, ColMappability, ColLength, ColNRC, ColID}
	if t.Labeled {
		cols = append(cols, ColClass)
	}
	if t.Augmented {
		cols = append(cols, ColNoisy)
	}
	return cols
}

// Values returns the cells of row i in Columns order.
func (t *Table) Values(i int) []string {
	r := t.Rows[i]
	v := []string{
		r.Chrom, tsv.Int(r.Start), tsv.Int(r.End),
		tsv.Float(r.GC), tsv.Float(r.Mappability), tsv.Int(r.Length()),
		tsv.Float(r.NRC), r.ID,
	}
	if t.Labeled {
		v = append(v, tsv.Int(int(r.Class)))
	}
	if t.Augmented {
		v = append(v, strconv.FormatBool(r.Noisy))
	}
	return v
}

// WriteTable writes t to path, gzip-compressed when path ends in .gz.
func WriteTable(path string, t *Table) error {
	w, err := tsv.Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(t.Columns()...); err != nil {
		w.Close()
		return err
	}
	for i := range t.Rows {
		if err := w.Write(t.Values(i)...); err != nil {
			w.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return w.Close()
}

// ReadTable reads a feature table. Length is derived from the coordinates.
func ReadTable(path string) (*Table, error) {
	r, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := r.Require(ColChr, ColStart, ColEnd, ColGC, ColMappability, ColNRC, ColID); err != nil {
		return nil, err
	}
	t := &Table{Labeled: r.Has(ColClass), Augmented: r.Has(ColNoisy)}

	err = r.ForEach(func(rec tsv.Record) error {
		row, err := parseRow(rec, t.Labeled, t.Augmented)
		if err != nil {
			return err
		}
		t.Rows = append(t.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func parseRow(rec tsv.Record, labeled, augmented bool) (Row, error) {
	var row Row
	start, err := rec.Int(ColStart)
	if err != nil {
		return row, err
	}
	end, err := rec.Int(ColEnd)
	if err != nil {
		return row, err
	}
	gc, err := rec.Float(ColGC)
	if err != nil {
		return row, err
	}
	mapp, err := rec.Float(ColMappability)
	if err != nil {
		return row, err
	}
	nrc, err := rec.Float(ColNRC)
	if err != nil {
		return row, err
	}
	row = Row{
		Region: annotate.Region{
			Interval:    genome.Interval{Chrom: rec.Get(ColChr), Start: start, End: end},
			GC:          gc,
			Mappability: mapp,
		},
		NRC: nrc,
		ID:  rec.Get(ColID),
	}
	if labeled {
		c, err := rec.Float(ColClass)
		if err != nil {
			return row, err
		}
		cl, err := ParseClass(c)
		if err != nil {
			return row, &tsv.ParseError{Line: rec.Line(), Message: err.Error()}
		}
		row.Class = cl
	}
	if augmented {
		b, err := strconv.ParseBool(rec.Get(ColNoisy))
		if err != nil {
			return row, &tsv.ParseError{Line: rec.Line(), Message: "is_noisy: " + err.Error()}
		}
		row.Noisy = b
	}
	return row, nil
}

// ReadTables reads and concatenates several tables of the same kind.
// Missing optional paths (empty strings) are skipped.
func ReadTables(paths ...string) (*Table, error) {
	out := &Table{}
	first := true
	for _, p := range paths {
		if p == "" {
			continue
		}
		t, err := ReadTable(p)
		if err != nil {
			return nil, err
		}
		if first {
			out.Labeled, out.Augmented = t.Labeled, t.Augmented
			first = false
		} else if t.Labeled != out.Labeled {
			return nil, errors.New("cannot concatenate labelled and unlabelled tables")
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out, nil
}
