// Package training prepares the chrX training tables, trains each
// configured model (or reloads it) and validates it on the held-out XLR
// rows and on the segmental-duplication subsets.
package training

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/inodb/vibe-cnv/internal/caller"
	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/duckdb"
	"github.com/inodb/vibe-cnv/internal/evaluate"
	"github.com/inodb/vibe-cnv/internal/integrity"
	"github.com/inodb/vibe-cnv/internal/model"
)

// Evaluation subset names.
const (
	SubsetTrain    = "XLR_train"
	SubsetTest     = "XLR_test"
	SubsetNoSegDup = dataset.SubsetNoSegDup
	SubsetSegDup   = dataset.SubsetSegDup
)

// Options configures a training run.
type Options struct {
	// DatasetDir holds the ALL_SAMPLE tables written by the dataset build.
	DatasetDir string
	OutDir     string
	// Simulated is an optional table of simulated double deletions.
	Simulated string
	Split     dataset.SplitOptions
	Noise     bool
	Mu, Sigma float64
	Models    []model.Kind
	Scaler    model.ScalerKind
	// Search carries the fold count, metric, search mode, threads and
	// class weights; Kind and Grid are set per model.
	Search    model.SearchOptions
	Averaging evaluate.Averaging
	// ParamsDir holds optional <MODEL>_cv_params.yaml grids.
	ParamsDir string
	Force     bool
	// SkipChrXTest skips validation on the noSegDup and SegDup subsets.
	SkipChrXTest bool
	Seed         uint64
}

// Data is the prepared input of a run.
type Data struct {
	Train    []dataset.Row
	Test     []dataset.Row
	NoSegDup []dataset.Row
	SegDup   []dataset.Row
	// Sources fingerprint the tables the training rows were read from.
	Sources []duckdb.FileFingerprint
}

// Prepare reads the training tables, merges the optional DDUP and simulated
// rows into XLR, splits XLR and adds noise when requested. Noisy copies stay
// in the partition of their clean row.
func Prepare(opt Options, logger *zap.Logger) (*Data, error) {
	xlrPath := filepath.Join(opt.DatasetDir, dataset.XLRFile)
	sources := []string{xlrPath}
	xlr, err := dataset.ReadTable(xlrPath)
	if err != nil {
		return nil, fmt.Errorf("read XLR table: %w", err)
	}
	if !xlr.Labeled {
		return nil, fmt.Errorf("%s has no %s column", xlrPath, dataset.ColClass)
	}
	rows := xlr.Rows

	ddupPath := filepath.Join(opt.DatasetDir, dataset.DDUPFile)
	if _, err := os.Stat(ddupPath); err == nil {
		ddup, err := dataset.ReadTable(ddupPath)
		if err != nil {
			return nil, fmt.Errorf("read DDUP table: %w", err)
		}
		logger.Info("merging multi-duplication rows", zap.Int("rows", len(ddup.Rows)))
		rows = append(rows, ddup.Rows...)
		sources = append(sources, ddupPath)
	}

	rng := rand.New(rand.NewSource(opt.Seed))
	if opt.Simulated != "" {
		sim, err := dataset.ReadTable(opt.Simulated)
		if err != nil {
			return nil, fmt.Errorf("read simulated table: %w", err)
		}
		if rows, err = dataset.MergeSimulated(rows, sim.Rows, rng); err != nil {
			return nil, err
		}
		sources = append(sources, opt.Simulated)
	}
	if len(rows) == 0 {
		return nil, &integrity.EmptyError{Stage: "training setup", Subset: dataset.SubsetXLR,
			Hint: "the dataset build produced no XLR rows"}
	}

	train, test, err := dataset.StratifiedSplit(rows, opt.Split, rng)
	if err != nil {
		return nil, err
	}
	if opt.Noise {
		train = dataset.AddNoise(train, opt.Mu, opt.Sigma, rng)
		test = dataset.AddNoise(test, opt.Mu, opt.Sigma, rng)
	}

	d := &Data{Train: train, Test: test}
	if !opt.SkipChrXTest {
		for _, s := range []struct {
			file string
			dst  *[]dataset.Row
		}{
			{dataset.NoSegDupFile, &d.NoSegDup},
			{dataset.SegDupFile, &d.SegDup},
		} {
			t, err := dataset.ReadTable(filepath.Join(opt.DatasetDir, s.file))
			if err != nil {
				return nil, err
			}
			*s.dst = t.Rows
		}
	}

	if d.Sources, err = duckdb.StatFiles(sources...); err != nil {
		return nil, err
	}
	logger.Info("training data prepared",
		zap.Int("train", len(d.Train)),
		zap.Int("test", len(d.Test)),
		zap.Int("nosegdup", len(d.NoSegDup)),
		zap.Int("segdup", len(d.SegDup)))
	return d, nil
}

// ModelDir names the output folder of one model and split configuration.
func ModelDir(kind model.Kind, split dataset.SplitOptions, noise bool) string {
	var b strings.Builder
	b.WriteString(string(kind))
	if split.TrainSamples > 0 {
		fmt.Fprintf(&b, "_TrainSamp_%d", split.TrainSamples)
	} else {
		fmt.Fprintf(&b, "_TestFr_%s", strconv.FormatFloat(split.TestFraction, 'g', -1, 64))
	}
	fmt.Fprintf(&b, "_Noise_%t", noise)
	return b.String()
}

// subset is one validation table; collapsed subsets are scored on the
// three-class scheme.
type subset struct {
	name      string
	rows      []dataset.Row
	collapsed bool
}

// Outcome is the result of training and validating one model.
type Outcome struct {
	Kind    model.Kind
	Dir     string
	Model   *model.Trained
	Reports []*evaluate.Report
}

// Runner trains and validates every configured model.
type Runner struct {
	Options
	// RunID identifies the run in the parameter record.
	RunID string
	Now   func() time.Time

	logger *zap.Logger
}

// NewRunner creates a runner with a fresh run identifier.
func NewRunner(opt Options) *Runner {
	return &Runner{Options: opt, RunID: uuid.NewString(), Now: time.Now, logger: zap.NewNop()}
}

// SetLogger sets the logger.
func (r *Runner) SetLogger(l *zap.Logger) {
	r.logger = l
}

// Run prepares the data once and trains and validates each model in turn.
func (r *Runner) Run(ctx context.Context) ([]*Outcome, error) {
	if len(r.Models) == 0 {
		return nil, fmt.Errorf("no models to train")
	}
	data, err := Prepare(r.Options, r.logger)
	if err != nil {
		return nil, err
	}
	var out []*Outcome
	for _, kind := range r.Models {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		o, err := r.runModel(ctx, kind, data)
		if err != nil {
			return out, fmt.Errorf("model %s: %w", kind, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Grid returns the search grid of kind: the <KIND>_cv_params.yaml file of
// ParamsDir when present, otherwise the built-in grid.
func (r *Runner) Grid(kind model.Kind) (model.Grid, error) {
	if r.ParamsDir != "" {
		for _, ext := range []string{".yaml", ".yml", ".json"} {
			p := filepath.Join(r.ParamsDir, string(kind)+"_cv_params"+ext)
			if _, err := os.Stat(p); err == nil {
				r.logger.Info("using parameter grid file", zap.String("model", string(kind)), zap.String("path", p))
				return model.LoadGrid(p)
			}
		}
	}
	return model.DefaultGrid(kind), nil
}

func (r *Runner) runModel(ctx context.Context, kind model.Kind, data *Data) (*Outcome, error) {
	dir := filepath.Join(r.OutDir, ModelDir(kind, r.Split, r.Noise))
	grid, err := r.Grid(kind)
	if err != nil {
		return nil, err
	}
	opt := r.Search
	opt.Kind, opt.Grid = kind, grid

	tr := model.NewTrainer(dir, r.Scaler, opt)
	tr.Force = r.Force
	tr.SetLogger(r.logger)
	trained, err := tr.TrainOrLoad(ctx, data.Train, data.Sources...)
	if err != nil {
		return nil, err
	}

	o := &Outcome{Kind: kind, Dir: dir, Model: trained}
	name := string(kind)
	subsets := []subset{
		{SubsetTrain, data.Train, false},
		{SubsetTest, data.Test, false},
	}
	if !r.SkipChrXTest {
		subsets = append(subsets,
			subset{SubsetNoSegDup, data.NoSegDup, true},
			subset{SubsetSegDup, data.SegDup, true})
	}

	for _, s := range subsets {
		labels, calls, err := Predict(trained, s.rows, s.collapsed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		rep, skipped := Validate(s.name, s.collapsed, labels, s.rows, calls, r.Averaging)
		if skipped > 0 {
			r.logger.Warn("rows left uncalled during validation",
				zap.String("model", name),
				zap.String("subset", s.name),
				zap.Int("rows", skipped))
		}
		r.logger.Info("validated",
			zap.String("model", name),
			zap.String("subset", s.name),
			zap.Int("rows", rep.Confusion.Total()),
			zap.Float64("accuracy", rep.Confusion.Accuracy()),
			zap.Float64("f1", rep.Confusion.AvgF1(r.Averaging)))
		o.Reports = append(o.Reports, rep)

		t := &dataset.Table{Rows: s.rows, Labeled: true, Augmented: r.Noise}
		if err := dataset.WriteTable(filepath.Join(dir, "datasets", s.name+".txt.gz"), t); err != nil {
			return nil, err
		}
		pred := filepath.Join(dir, "datasets", fmt.Sprintf("%s_%s_pred.txt.gz", s.name, name))
		if err := caller.WriteTable(pred, name, t, labels, calls); err != nil {
			return nil, err
		}
	}

	if err := evaluate.WriteReports(filepath.Join(dir, name+"_metrics.txt"), o.Reports...); err != nil {
		return nil, err
	}
	if err := evaluate.WriteROC(filepath.Join(dir, name+"_roc.txt.gz"), o.Reports...); err != nil {
		return nil, err
	}
	if err := r.writeParams(filepath.Join(dir, "run_params.txt"), trained, data); err != nil {
		return nil, err
	}
	return o, nil
}

// Predict scores rows with m. Collapsed predictions are folded onto the
// three-class scheme. The returned labels order every call's Proba.
func Predict(m *model.Trained, rows []dataset.Row, collapsed bool) ([]dataset.Class, []caller.Call, error) {
	labels := m.Labels()
	calls := make([]caller.Call, len(rows))
	for i, row := range rows {
		c := caller.Score(m, row)
		if collapsed {
			var err error
			if c, err = c.Collapse(labels, row.Mappability); err != nil {
				return nil, nil, err
			}
		}
		calls[i] = c
	}
	if collapsed {
		labels = dataset.CollapsedClasses
	}
	return labels, calls, nil
}

// Validate builds the report of one subset. Five-class subsets are scored
// over every class, collapsed ones over the three-class set with collapsed
// truth. Probabilities of classes the model never saw are zero. Uncalled
// rows are left out and counted.
func Validate(name string, collapsed bool, labels []dataset.Class, rows []dataset.Row, calls []caller.Call, avg evaluate.Averaging) (*evaluate.Report, int) {
	scored := dataset.Classes
	if collapsed {
		scored = dataset.CollapsedClasses
	}
	pos := make(map[dataset.Class]int, len(labels))
	for i, c := range labels {
		pos[c] = i
	}

	var truth, pred []dataset.Class
	var proba [][]float64
	skipped := 0
	for i, c := range calls {
		if !c.Called {
			skipped++
			continue
		}
		p := make([]float64, len(scored))
		for j, cl := range scored {
			if k, ok := pos[cl]; ok {
				p[j] = c.Proba[k]
			}
		}
		t := rows[i].Class
		if collapsed {
			t = t.Collapse()
		}
		truth = append(truth, t)
		pred = append(pred, c.Class)
		proba = append(proba, p)
	}
	return evaluate.Evaluate(name, scored, truth, pred, proba, avg), skipped
}

func (r *Runner) writeParams(path string, m *model.Trained, data *Data) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	kv := [][2]string{
		{"run_id", r.RunID},
		{"date", r.Now().Format(time.RFC3339)},
		{"model", string(m.Kind)},
		{"params", m.Params.String()},
		{"cv_score", strconv.FormatFloat(m.Score, 'g', 6, 64)},
		{"reloaded", strconv.FormatBool(m.Reloaded)},
		{"scaler", string(r.Scaler)},
		{"metric", r.Search.Metric.Name},
		{"folds", strconv.Itoa(r.Search.Folds)},
		{"random_search", strconv.FormatBool(r.Search.Random)},
		{"test_fraction", strconv.FormatFloat(r.Split.TestFraction, 'g', -1, 64)},
		{"train_samples", strconv.Itoa(r.Split.TrainSamples)},
		{"noise", strconv.FormatBool(r.Noise)},
		{"mu", strconv.FormatFloat(r.Mu, 'g', -1, 64)},
		{"sigma", strconv.FormatFloat(r.Sigma, 'g', -1, 64)},
		{"seed", strconv.FormatUint(r.Seed, 10)},
		{"train_rows", strconv.Itoa(len(data.Train))},
		{"test_rows", strconv.Itoa(len(data.Test))},
		{"simulated", r.Simulated},
	}
	w := bufio.NewWriter(f)
	for _, p := range kv {
		fmt.Fprintf(w, "%s\t%s\n", p[0], p[1])
	}
	for i, s := range data.Sources {
		fmt.Fprintf(w, "source%d\t%s\t%d\t%s\n", i, s.Path, s.Size, s.ModTime.UTC().Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write run params: %w", err)
	}
	return f.Close()
}
