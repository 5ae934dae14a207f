package model

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/duckdb"
)

// Trained is a classifier together with the scaler its inputs pass through.
type Trained struct {
	Kind   Kind
	Params Params
	Score  float64
	Model  Classifier
	Scaler *Scaler
	// Reloaded is set when the classifier came from disk.
	Reloaded bool
}

// Labels returns the classes probabilities are ordered by.
func (t *Trained) Labels() []dataset.Class { return t.Model.Labels() }

// Predict scales x and returns the most probable class and the
// probability of every label.
func (t *Trained) Predict(x []float64) (dataset.Class, []float64) {
	return Predict(t.Model, t.Scaler.Transform(x))
}

// Matrix returns the feature vectors and labels of rows whose features are
// all finite, and the number of rows dropped.
func Matrix(rows []dataset.Row) ([][]float64, []dataset.Class, int) {
	X := make([][]float64, 0, len(rows))
	y := make([]dataset.Class, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		x := r.Features()
		if !finite(x) {
			dropped++
			continue
		}
		X = append(X, x)
		y = append(y, r.Class)
	}
	return X, y, dropped
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Trainer fits one model kind, or reloads it when its artifacts exist.
type Trainer struct {
	Dir    string
	Scaler ScalerKind
	Search SearchOptions
	// Force retrains even when artifacts exist.
	Force bool

	logger *zap.Logger
}

// NewTrainer creates a trainer writing artifacts into dir.
func NewTrainer(dir string, scaler ScalerKind, opt SearchOptions) *Trainer {
	return &Trainer{Dir: dir, Scaler: scaler, Search: opt, logger: zap.NewNop()}
}

// SetLogger sets the logger.
func (t *Trainer) SetLogger(l *zap.Logger) {
	t.logger = l
}

// Artifacts returns the artifact pair this trainer reads and writes.
func (t *Trainer) Artifacts() *Artifacts {
	return NewArtifacts(t.Dir, t.Search.Kind, t.Scaler, t.Search.Metric.Name)
}

// CVReportPath returns the path of the search report.
func (t *Trainer) CVReportPath() string {
	return filepath.Join(t.Dir, fmt.Sprintf("%s_cv_report.txt", t.Search.Kind))
}

// TrainOrLoad returns the persisted model when one exists and Force is not
// set, otherwise runs the search on rows and persists the result. A
// persisted model without its scaler keeps the model and refits the scaler
// on rows. sources fingerprint the training tables.
func (t *Trainer) TrainOrLoad(ctx context.Context, rows []dataset.Row, sources ...duckdb.FileFingerprint) (*Trained, error) {
	X, y, dropped := Matrix(rows)
	if dropped > 0 {
		t.logger.Warn("dropped training rows with non-finite features",
			zap.String("model", string(t.Search.Kind)),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(X)))
	}
	if len(X) == 0 {
		return nil, fmt.Errorf("train %s: no rows with finite features", t.Search.Kind)
	}

	art := t.Artifacts()
	if !t.Force && art.HasModel() {
		return t.load(art, X, sources)
	}

	scaler, err := FitScaler(t.Scaler, X)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", t.Search.Kind, err)
	}
	t.logger.Info("searching hyperparameters",
		zap.String("model", string(t.Search.Kind)),
		zap.String("metric", t.Search.Metric.Name),
		zap.Int("folds", t.Search.Folds),
		zap.Int("rows", len(X)))
	res, err := Search(ctx, scaler.TransformAll(X), y, t.Search)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", t.Search.Kind, err)
	}
	t.logger.Info("best hyperparameters",
		zap.String("model", string(t.Search.Kind)),
		zap.String("params", res.Best.String()),
		zap.Float64("score", res.BestScore))

	saved := &Saved{Kind: t.Search.Kind, Params: res.Best, Score: res.BestScore, Model: res.Model}
	if err := art.SaveModel(saved, sources...); err != nil {
		return nil, err
	}
	if err := art.SaveScaler(scaler); err != nil {
		return nil, err
	}
	if err := WriteCVReport(t.CVReportPath(), t.Search.Kind, t.Search.Metric.Name, res); err != nil {
		return nil, err
	}
	return &Trained{
		Kind:   t.Search.Kind,
		Params: res.Best,
		Score:  res.BestScore,
		Model:  res.Model,
		Scaler: scaler,
	}, nil
}

func (t *Trainer) load(art *Artifacts, X [][]float64, sources []duckdb.FileFingerprint) (*Trained, error) {
	if len(sources) > 0 && !art.Valid(sources...) {
		t.logger.Warn("persisted model was trained on different tables; reusing it, pass --force to retrain",
			zap.String("model", art.ModelPath()))
	}
	saved, err := art.LoadModel()
	if err != nil {
		return nil, err
	}

	var scaler *Scaler
	if art.HasScaler() {
		if scaler, err = art.LoadScaler(); err != nil {
			return nil, err
		}
	} else {
		t.logger.Warn("model found without its scaler; refitting the scaler only",
			zap.String("model", art.ModelPath()),
			zap.String("scaler", art.ScalerPath()))
		if scaler, err = FitScaler(t.Scaler, X); err != nil {
			return nil, fmt.Errorf("refit scaler: %w", err)
		}
		if err := art.SaveScaler(scaler); err != nil {
			return nil, err
		}
	}
	t.logger.Info("loaded persisted model",
		zap.String("model", art.ModelPath()),
		zap.String("params", saved.Params.String()))
	return &Trained{
		Kind:     saved.Kind,
		Params:   saved.Params,
		Score:    saved.Score,
		Model:    saved.Model,
		Scaler:   scaler,
		Reloaded: true,
	}, nil
}

// Load reads a persisted model and its scaler without training data. Both
// files must be present.
func Load(art *Artifacts) (*Trained, error) {
	if !art.HasScaler() {
		return nil, fmt.Errorf("scaler %s missing for model %s", art.ScalerPath(), art.ModelPath())
	}
	saved, err := art.LoadModel()
	if err != nil {
		return nil, err
	}
	scaler, err := art.LoadScaler()
	if err != nil {
		return nil, err
	}
	return &Trained{
		Kind:     saved.Kind,
		Params:   saved.Params,
		Score:    saved.Score,
		Model:    saved.Model,
		Scaler:   scaler,
		Reloaded: true,
	}, nil
}
