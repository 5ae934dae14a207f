package caller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/duckdb"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Store records the calls of a sample.
type Store interface {
	WriteCalls(sample, model string, source duckdb.FileFingerprint, calls []duckdb.Call) error
	Processed(sample, model string, source duckdb.FileFingerprint) (bool, error)
}

// Records are the store rows produced for one sample.
type Records struct {
	Source duckdb.FileFingerprint
	Calls  []duckdb.Call
}

// BatchError lists the samples a batch failed on.
type BatchError struct {
	Failed []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("calling failed for %d sample(s): %s", len(e.Failed), strings.Join(e.Failed, ", "))
}

// Result summarises a batch.
type Result struct {
	Called  []string
	Skipped []string
	Failed  []string
	// Summaries of the called samples, in input order.
	Summaries []*Summary
}

// Batch calls every sample of an input directory with one model.
type Batch struct {
	Model Predictor
	// Name prefixes the output columns and names the output files.
	Name   string
	OutDir string
	// SkipTested leaves samples whose output already exists untouched. With
	// a Store, the sample is also recalled when its input changed since the
	// calls were recorded.
	SkipTested bool
	// ForceMedianNorm subtracts each sample's autosomal NRC median before
	// calling.
	ForceMedianNorm bool
	Workers         int
	// Store optionally receives every sample's calls.
	Store Store

	logger *zap.Logger
}

// NewBatch creates a batch writing into outDir.
func NewBatch(p Predictor, name, outDir string) *Batch {
	return &Batch{Model: p, Name: name, OutDir: outDir, Workers: 1, logger: zap.NewNop()}
}

// SetLogger sets the logger.
func (b *Batch) SetLogger(l *zap.Logger) {
	b.logger = l
}

// Inputs lists the sample feature tables of dir in name order.
func Inputs(dir string) ([]WorkItem, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+dataset.TargetSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	items := make([]WorkItem, len(paths))
	for i, p := range paths {
		items[i] = WorkItem{
			Seq:    i,
			Sample: strings.TrimSuffix(filepath.Base(p), dataset.TargetSuffix),
			Path:   p,
		}
	}
	return items, nil
}

// OutputPath returns the call table of a sample.
func (b *Batch) OutputPath(sample string) string {
	return filepath.Join(b.OutDir, fmt.Sprintf("%s_%s.txt.gz", sample, b.Name))
}

// SummaryPath returns the summary log of a sample.
func (b *Batch) SummaryPath(sample string) string {
	return filepath.Join(b.OutDir, fmt.Sprintf("%s_%s_summary.txt", sample, b.Name))
}

// Run calls every item. Samples fail independently: a failure is logged and
// the remaining samples are still called. The returned error is a
// *BatchError when any sample failed. An empty batch succeeds.
func (b *Batch) Run(items []WorkItem) (*Result, error) {
	if err := os.MkdirAll(b.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	res := &Result{}
	if len(items) == 0 {
		b.logger.Info("no samples to call")
		return res, nil
	}
	b.logger.Info("calling samples",
		zap.String("model", b.Name),
		zap.Int("samples", len(items)),
		zap.Int("workers", b.Workers))

	seq := make([]WorkItem, len(items))
	for i, it := range items {
		it.Seq = i
		seq[i] = it
	}
	results := ParallelCall(seq, b.Workers, b.callSample)
	err := OrderedCollect(results, func(r WorkResult) error {
		if r.Err == nil && r.Records != nil && b.Store != nil {
			if err := b.Store.WriteCalls(r.Sample, b.Name, r.Records.Source, r.Records.Calls); err != nil {
				r.Err = fmt.Errorf("store calls: %w", err)
			}
		}
		switch {
		case r.Err != nil:
			b.logger.Error("sample failed", zap.String("sample", r.Sample), zap.Error(r.Err))
			res.Failed = append(res.Failed, r.Sample)
		case r.Skipped:
			b.logger.Info("skipping already called sample",
				zap.String("sample", r.Sample),
				zap.String("output", r.Output))
			res.Skipped = append(res.Skipped, r.Sample)
		default:
			b.logSummary(r.Summary)
			res.Called = append(res.Called, r.Sample)
			res.Summaries = append(res.Summaries, r.Summary)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	b.logger.Info("calling finished",
		zap.Int("called", len(res.Called)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
		zap.Strings("failed_samples", res.Failed))
	if len(res.Failed) > 0 {
		return res, &BatchError{Failed: res.Failed}
	}
	return res, nil
}

func (b *Batch) logSummary(s *Summary) {
	fields := []zap.Field{
		zap.String("sample", s.Sample),
		zap.Int("regions", s.Rows),
		zap.Int("uncalled", s.Uncalled),
	}
	for _, c := range s.Classes {
		fields = append(fields, zap.Int("class_"+c.Class.String(), c.Count))
	}
	b.logger.Info("sample called", fields...)
}

// callSample runs in a worker; it touches only the sample's own files.
func (b *Batch) callSample(item WorkItem) WorkResult {
	out := b.OutputPath(item.Sample)
	if b.SkipTested {
		skip, err := b.called(item, out)
		if err != nil {
			return WorkResult{Err: err}
		}
		if skip {
			return WorkResult{Output: out, Skipped: true}
		}
	}

	t, err := dataset.ReadTable(item.Path)
	if err != nil {
		return WorkResult{Err: err}
	}
	shift := 0.0
	if b.ForceMedianNorm {
		if shift, err = t.RecenterAutosomal(); err != nil {
			return WorkResult{Err: err}
		}
	}

	labels := b.Model.Labels()
	calls := make([]Call, len(t.Rows))
	for i, r := range t.Rows {
		calls[i] = Score(b.Model, r)
	}
	if err := WriteTable(out, b.Name, t, labels, calls); err != nil {
		return WorkResult{Err: err}
	}

	s := Summarize(item.Sample, b.Name, labels, t.Rows, calls)
	if b.ForceMedianNorm {
		s.Shift = shift
	}
	if err := s.WriteFile(b.SummaryPath(item.Sample)); err != nil {
		return WorkResult{Err: err}
	}

	r := WorkResult{Output: out, Summary: s}
	if b.Store != nil {
		src, err := duckdb.StatFile(item.Path)
		if err != nil {
			return WorkResult{Err: err}
		}
		r.Records = &Records{Source: src, Calls: storeCalls(item.Sample, b.Name, t.Rows, calls)}
	}
	return r
}

// called reports whether item already has an up-to-date call table.
func (b *Batch) called(item WorkItem, out string) (bool, error) {
	if _, err := os.Stat(out); err != nil {
		return false, nil
	}
	if b.Store == nil {
		return true, nil
	}
	src, err := duckdb.StatFile(item.Path)
	if err != nil {
		return false, err
	}
	ok, err := b.Store.Processed(item.Sample, b.Name, src)
	if err != nil {
		return false, fmt.Errorf("store lookup: %w", err)
	}
	return ok, nil
}

// Columns returns the call columns appended to the feature table.
func Columns(name string, labels []dataset.Class) []string {
	cols := []string{name + "_pred", name + "_pred_proba", name + "_pred_confidence"}
	for _, c := range labels {
		cols = append(cols, fmt.Sprintf("%s_pred_proba_(%s)", name, c))
	}
	return cols
}

// WriteTable writes the feature table t with the calls of model name
// appended to every row.
func WriteTable(path, name string, t *dataset.Table, labels []dataset.Class, calls []Call) error {
	if len(calls) != len(t.Rows) {
		return fmt.Errorf("write %s: %d calls for %d rows", path, len(calls), len(t.Rows))
	}
	w, err := tsv.Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(append(t.Columns(), Columns(name, labels)...)...); err != nil {
		w.Close()
		return err
	}
	for i, c := range calls {
		pred := "NA"
		if c.Called {
			pred = c.Class.String()
		}
		v := append(t.Values(i), pred, tsv.Float(c.Confidence), tsv.Float(c.MapConfidence))
		for _, p := range c.Proba {
			v = append(v, tsv.Float(p))
		}
		if err := w.Write(v...); err != nil {
			w.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return w.Close()
}

func storeCalls(sample, name string, rows []dataset.Row, calls []Call) []duckdb.Call {
	out := make([]duckdb.Call, len(calls))
	for i, c := range calls {
		r := rows[i]
		out[i] = duckdb.Call{
			Sample: sample, Model: name,
			Chrom: r.Chrom, Start: int64(r.Start), End: int64(r.End),
			GC: r.GC, Map: r.Mappability, NRC: r.NRC,
			Pred: int(c.Class), Called: c.Called,
			Proba: c.Confidence, Confidence: c.MapConfidence,
		}
	}
	return out
}

// IsBatchError reports whether err carries failed samples.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}
