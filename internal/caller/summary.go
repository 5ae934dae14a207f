package caller

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/stats"
)

// ClassStats describes the regions predicted as one class.
type ClassStats struct {
	Class  dataset.Class
	Count  int
	Median float64
	Min    float64
	Max    float64
	Q1     float64
	Q3     float64
}

// Summary describes the calls of one sample.
type Summary struct {
	Sample   string
	Model    string
	Rows     int
	Uncalled int
	// Shift is the autosomal median subtracted before calling, NaN when
	// the table was not recentred.
	Shift   float64
	Classes []ClassStats
}

// Summarize counts calls per predicted class and describes the NRC
// distribution of each.
func Summarize(sample, model string, labels []dataset.Class, rows []dataset.Row, calls []Call) *Summary {
	s := &Summary{Sample: sample, Model: model, Rows: len(rows), Shift: math.NaN()}
	byClass := make(map[dataset.Class][]float64, len(labels))
	for i, c := range calls {
		if !c.Called {
			s.Uncalled++
			continue
		}
		byClass[c.Class] = append(byClass[c.Class], rows[i].NRC)
	}
	for _, c := range labels {
		v := byClass[c]
		q := stats.Percentiles(v, 0, 0.25, 0.5, 0.75, 1)
		s.Classes = append(s.Classes, ClassStats{
			Class: c, Count: len(v),
			Min: q[0], Q1: q[1], Median: q[2], Q3: q[3], Max: q[4],
		})
	}
	return s
}

// Count returns the number of regions predicted as c.
func (s *Summary) Count(c dataset.Class) int {
	for _, cs := range s.Classes {
		if cs.Class == c {
			return cs.Count
		}
	}
	return 0
}

// Write renders the summary as text.
func (s *Summary) Write(w io.Writer) error {
	fmt.Fprintf(w, "sample\t%s\n", s.Sample)
	fmt.Fprintf(w, "model\t%s\n", s.Model)
	fmt.Fprintf(w, "regions\t%d\n", s.Rows)
	fmt.Fprintf(w, "uncalled\t%d\n", s.Uncalled)
	if !math.IsNaN(s.Shift) {
		fmt.Fprintf(w, "autosomal_median\t%.6f\n", s.Shift)
	}
	fmt.Fprintf(w, "\nclass\tcount\tmedian\tmin\tmax\tq1\tq3\n")
	var err error
	for _, c := range s.Classes {
		_, err = fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			c.Class, c.Count, c.Median, c.Min, c.Max, c.Q1, c.Q3)
	}
	return err
}

// WriteFile writes the summary to path.
func (s *Summary) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	if err := s.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
