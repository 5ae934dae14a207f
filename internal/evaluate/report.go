package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Report is the evaluation of one subset.
type Report struct {
	Subset    string
	Averaging Averaging
	Confusion *Confusion
	ROCs      []ROC
}

// Evaluate scores predictions on a subset. proba rows are aligned with
// labels and may be nil, in which case no ROC curves are computed.
func Evaluate(subset string, labels, truth, pred []dataset.Class, proba [][]float64, avg Averaging) *Report {
	r := &Report{Subset: subset, Averaging: avg, Confusion: NewConfusion(labels, truth, pred)}
	if proba != nil {
		for _, c := range labels {
			r.ROCs = append(r.ROCs, ComputeROC(truth, OneVsAll(labels, proba, c), c))
		}
	}
	return r
}

// Write renders the report as plain text.
func (r *Report) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	c := r.Confusion
	fmt.Fprintf(bw, "== %s ==\n", r.Subset)
	fmt.Fprintf(bw, "rows\t%d\n", c.Total())
	if c.Dropped > 0 {
		fmt.Fprintf(bw, "rows outside label set\t%d\n", c.Dropped)
	}
	fmt.Fprintf(bw, "accuracy\t%.4f\n", c.Accuracy())
	fmt.Fprintf(bw, "precision_%s\t%.4f\n", r.Averaging, c.AvgPrecision(r.Averaging))
	fmt.Fprintf(bw, "recall_%s\t%.4f\n", r.Averaging, c.AvgRecall(r.Averaging))
	fmt.Fprintf(bw, "f1_%s\t%.4f\n", r.Averaging, c.AvgF1(r.Averaging))

	bw.WriteString("\nconfusion (rows true, columns predicted)\n")
	for _, l := range c.Labels {
		fmt.Fprintf(bw, "\t%s", l)
	}
	bw.WriteString("\n")
	for i, l := range c.Labels {
		fmt.Fprintf(bw, "%s", l)
		for _, v := range c.Counts[i] {
			fmt.Fprintf(bw, "\t%d", v)
		}
		bw.WriteString("\n")
	}

	bw.WriteString("\nclass\tsupport\tprecision\trecall\tf1\tTPR\tTNR\tFPR\tFNR\tAUC\n")
	for i, l := range c.Labels {
		rt := c.Rates(i)
		auc := "NA"
		if i < len(r.ROCs) && !math.IsNaN(r.ROCs[i].AUC) {
			auc = fmt.Sprintf("%.4f", r.ROCs[i].AUC)
		}
		fmt.Fprintf(bw, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%s\n",
			l, c.Support(i), c.Precision(i), c.Recall(i), c.F1(i),
			rt.TPR, rt.TNR, rt.FPR, rt.FNR, auc)
	}
	bw.WriteString("\n")
	return bw.Flush()
}

// WriteReports writes several subset reports to one text file.
func WriteReports(path string, reports ...*Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, r := range reports {
		if err := r.Write(f); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// WriteROC writes every ROC point of the reports as a table.
func WriteROC(path string, reports ...*Report) error {
	w, err := tsv.Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteHeader("subset", "class", "threshold", "fpr", "tpr", "auc"); err != nil {
		w.Close()
		return err
	}
	for _, r := range reports {
		for _, roc := range r.ROCs {
			for i := range roc.FPR {
				if err := w.Write(r.Subset, roc.Class.String(), tsv.Float(roc.Thresholds[i]),
					tsv.Float(roc.FPR[i]), tsv.Float(roc.TPR[i]), tsv.Float(roc.AUC)); err != nil {
					w.Close()
					return err
				}
			}
		}
	}
	return w.Close()
}
