package model

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/evaluate"
)

// Grid maps a hyperparameter name to its candidate values.
type Grid map[string][]float64

// Expand returns every combination, keys in sorted order with the last
// key varying fastest.
func (g Grid) Expand() []Params {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := []Params{{}}
	for _, k := range keys {
		var next []Params
		for _, p := range out {
			for _, v := range g[k] {
				q := make(Params, len(p)+1)
				for pk, pv := range p {
					q[pk] = pv
				}
				q[k] = v
				next = append(next, q)
			}
		}
		out = next
	}
	return out
}

// Sample draws n distinct combinations. The whole grid is returned, in
// grid order, when it has n or fewer combinations.
func (g Grid) Sample(n int, rng *rand.Rand) []Params {
	all := g.Expand()
	if len(all) <= n {
		return all
	}
	out := make([]Params, n)
	for i, j := range rng.Perm(len(all))[:n] {
		out[i] = all[j]
	}
	return out
}

// StratifiedFolds assigns every row to one of k folds. Each class's rows,
// in order, are cut into k contiguous chunks whose sizes differ by at most
// one.
func StratifiedFolds(y []dataset.Class, k int) []int {
	byClass := make(map[dataset.Class][]int)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	fold := make([]int, len(y))
	for _, idx := range byClass {
		n := len(idx)
		start := 0
		for f := 0; f < k; f++ {
			size := n / k
			if f < n%k {
				size++
			}
			for _, i := range idx[start : start+size] {
				fold[i] = f
			}
			start += size
		}
	}
	return fold
}

// SearchOptions configures a cross-validated hyperparameter search.
type SearchOptions struct {
	Kind       Kind
	Grid       Grid
	Folds      int
	Metric     evaluate.Metric
	Random     bool
	Iterations int
	Threads    int
	Weights    ClassWeights
	Seed       uint64
}

// CVResult is the cross-validated score of one combination.
type CVResult struct {
	Params Params
	Scores []float64
	Mean   float64
	Std    float64
}

// SearchResult is the outcome of a search; Model is refitted on all rows
// with the best parameters.
type SearchResult struct {
	Best      Params
	BestScore float64
	Results   []CVResult
	Model     Classifier
}

// Search evaluates every candidate combination with stratified k-fold
// cross-validation, fold fits running on at most Threads goroutines, and
// refits the best one on all rows. Ties keep the earliest combination.
func Search(ctx context.Context, X [][]float64, y []dataset.Class, opt SearchOptions) (*SearchResult, error) {
	if opt.Folds < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", opt.Folds)
	}
	if len(X) < opt.Folds {
		return nil, fmt.Errorf("%d rows cannot be split into %d folds", len(X), opt.Folds)
	}
	candidates := opt.Grid.Expand()
	if opt.Random {
		candidates = opt.Grid.Sample(opt.Iterations, rand.New(rand.NewSource(opt.Seed)))
	}
	if len(candidates) == 0 {
		return nil, errors.New("empty hyperparameter grid")
	}
	labels, yi := LabelSet(y)
	if len(labels) < 2 {
		return nil, fmt.Errorf("need at least two classes, got %v", labels)
	}
	w := opt.Weights.SampleWeights(y)
	folds := StratifiedFolds(y, opt.Folds)

	scores := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, opt.Folds)
	}

	g, ctx := errgroup.WithContext(ctx)
	threads := opt.Threads
	if threads < 1 {
		threads = 1
	}
	g.SetLimit(threads)
	for ci, params := range candidates {
		for f := 0; f < opt.Folds; f++ {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				s, err := foldScore(X, y, yi, w, labels, folds, f, opt, params,
					rand.New(rand.NewSource(opt.Seed+uint64(ci*opt.Folds+f)+1)))
				if err != nil {
					return fmt.Errorf("%s %s fold %d: %w", opt.Kind, params, f, err)
				}
				scores[ci][f] = s
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &SearchResult{BestScore: math.Inf(-1)}
	for ci, params := range candidates {
		mean, std := popMeanStd(scores[ci])
		res.Results = append(res.Results, CVResult{Params: params, Scores: scores[ci], Mean: mean, Std: std})
		if mean > res.BestScore {
			res.Best, res.BestScore = params, mean
		}
	}
	if res.Best == nil {
		return nil, errors.New("no candidate produced a finite score")
	}

	m, err := New(opt.Kind, res.Best)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(X, yi, w, labels, rand.New(rand.NewSource(opt.Seed))); err != nil {
		return nil, fmt.Errorf("refit best %s: %w", opt.Kind, err)
	}
	res.Model = m
	return res, nil
}

func foldScore(X [][]float64, y []dataset.Class, yi []int, w []float64, labels []dataset.Class,
	folds []int, f int, opt SearchOptions, params Params, rng *rand.Rand) (float64, error) {
	var trX [][]float64
	var trY []int
	var trW []float64
	var truth, pred []dataset.Class
	var teX [][]float64
	for i := range X {
		if folds[i] == f {
			teX = append(teX, X[i])
			truth = append(truth, y[i])
			continue
		}
		trX = append(trX, X[i])
		trY = append(trY, yi[i])
		trW = append(trW, w[i])
	}
	m, err := New(opt.Kind, params)
	if err != nil {
		return 0, err
	}
	if err := m.Fit(trX, trY, trW, labels, rng); err != nil {
		return 0, err
	}
	for _, x := range teX {
		c, _ := Predict(m, x)
		pred = append(pred, c)
	}
	return opt.Metric.Score(labels, truth, pred), nil
}

// popMeanStd returns the mean and population standard deviation.
func popMeanStd(x []float64) (float64, float64) {
	mean, variance := stat.MeanVariance(x, nil)
	n := float64(len(x))
	if n < 2 {
		return mean, 0
	}
	return mean, math.Sqrt(variance * (n - 1) / n)
}

// LoadGrid reads a hyperparameter grid from a YAML or JSON document
// mapping each parameter name to its list of candidate values.
func LoadGrid(path string) (Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	var g Grid
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse grid %s: %w", path, err)
	}
	for k, v := range g {
		if len(v) == 0 {
			return nil, fmt.Errorf("grid %s: parameter %q has no values", path, k)
		}
	}
	return g, nil
}

// WriteCVReport writes the best combination followed by the mean and
// standard deviation of every evaluated one.
func WriteCVReport(path string, kind Kind, metric string, res *SearchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cv report: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "model\t%s\n", kind)
	fmt.Fprintf(w, "metric\t%s\n", metric)
	fmt.Fprintf(w, "best_params\t%s\n", res.Best)
	fmt.Fprintf(w, "best_score\t%.4f\n\n", res.BestScore)
	fmt.Fprintf(w, "params\tmean_%s\tstd_%s\n", metric, metric)
	for _, r := range res.Results {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", r.Params, r.Mean, r.Std)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write cv report: %w", err)
	}
	return f.Close()
}
