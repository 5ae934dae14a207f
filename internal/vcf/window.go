package vcf

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/inodb/vibe-cnv/internal/caller"
	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Window table column names.
const (
	ColChr       = "Chr"
	ColStart     = "Start"
	ColEnd       = "End"
	ColState     = "State"
	ColCN        = "CN"
	ColProbCall  = "ProbCall"
	ColPError    = "p_error"
	ColMedianNRC = "Median_NRC"
	ColLength    = "window_length"
)

// Window is one segmented copy-number call.
type Window struct {
	Chrom     string
	Start     int64
	End       int64
	State     string
	CN        string
	ProbCall  float64
	PError    float64
	MedianNRC float64
	Length    int64
}

// ReadWindows reads a window table, locating columns by header name.
func ReadWindows(path string) ([]Window, error) {
	r, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if err := r.Require(ColChr, ColStart, ColEnd, ColState, ColCN, ColProbCall, ColPError, ColMedianNRC, ColLength); err != nil {
		return nil, err
	}

	var out []Window
	err = r.ForEach(func(rec tsv.Record) error {
		start, err := rec.Int(ColStart)
		if err != nil {
			return err
		}
		end, err := rec.Int(ColEnd)
		if err != nil {
			return err
		}
		length, err := rec.Int(ColLength)
		if err != nil {
			return err
		}
		w := Window{
			Chrom: rec.Get(ColChr),
			Start: int64(start),
			End:   int64(end),
			State: rec.Get(ColState),
			CN:    rec.Get(ColCN),
		}
		if w.ProbCall, err = rec.Float(ColProbCall); err != nil {
			return err
		}
		if w.PError, err = rec.Float(ColPError); err != nil {
			return err
		}
		if w.MedianNRC, err = rec.Float(ColMedianNRC); err != nil {
			return err
		}
		w.Length = int64(length)
		out = append(out, w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Phred returns -10·log10(p). It reports false when p is not positive, in
// which case the record is unscored.
func Phred(p float64) (float64, bool) {
	if !(p > 0) {
		return math.NaN(), false
	}
	return -10 * math.Log10(p), true
}

// AltFor maps a window state onto a symbolic ALT allele.
func AltFor(state string) (string, error) {
	switch strings.ToUpper(state) {
	case "DEL", "DDEL":
		return "DEL", nil
	case "DUP", "DDUP", "MDUP":
		return "DUP", nil
	}
	return "", fmt.Errorf("window state %q is not a deletion or duplication", state)
}

// ParseCN parses a copy number. "4+" reads as 4.
func ParseCN(cn string) (int, error) {
	if cn == "4+" {
		return 4, nil
	}
	n, err := strconv.Atoi(cn)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid copy number %q", cn)
	}
	return n, nil
}

// SortWindows orders windows by natural chromosome order, then start.
func SortWindows(ws []Window) {
	sort.SliceStable(ws, func(i, j int) bool {
		if c := genome.CompareChrom(ws[i].Chrom, ws[j].Chrom); c != 0 {
			return c < 0
		}
		return ws[i].Start < ws[j].Start
	})
}

// Records converts windows into sorted VCF records, numbered from 1 in
// output order.
func Records(ws []Window, tiers caller.Tiers) ([]Record, error) {
	sorted := append([]Window(nil), ws...)
	SortWindows(sorted)

	out := make([]Record, 0, len(sorted))
	for i, w := range sorted {
		alt, err := AltFor(w.State)
		if err != nil {
			return nil, fmt.Errorf("window %s:%d: %w", w.Chrom, w.Start, err)
		}
		cn, err := ParseCN(w.CN)
		if err != nil {
			return nil, fmt.Errorf("window %s:%d: %w", w.Chrom, w.Start, err)
		}
		qual, _ := Phred(w.PError)
		pos := w.Start - 1
		out = append(out, Record{
			Chrom:  w.Chrom,
			Pos:    pos,
			ID:     fmt.Sprintf("vibe-cnv_%s_%d", w.State, i+1),
			Alt:    alt,
			Qual:   qual,
			Filter: tiers.Filter(w.ProbCall),
			End:    pos + w.Length,
			SVLen:  w.Length,
			CN:     cn,
			MNRC:   w.MedianNRC,
			CS:     w.ProbCall,
		})
	}
	return out, nil
}
