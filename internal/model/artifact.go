package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/inodb/vibe-cnv/internal/duckdb"
)

// Artifacts manages the gob-serialized classifier and scaler pair of one
// model on disk:
//
//	{dir}/{MODEL}{scaler}_cv_{metric}.gob       (classifier and best params)
//	{dir}/{MODEL}{scaler}_cv_{metric}.gob.meta  (training table fingerprints)
//	{dir}/{MODEL}{scaler}.gob                   (fitted scaler)
type Artifacts struct {
	dir    string
	kind   Kind
	scaler ScalerKind
	metric string
}

// NewArtifacts returns the artifact pair for a model trained with the given
// scaler and selection metric.
func NewArtifacts(dir string, kind Kind, scaler ScalerKind, metric string) *Artifacts {
	return &Artifacts{dir: dir, kind: kind, scaler: scaler, metric: metric}
}

// Saved is the serialized classifier with its search outcome.
type Saved struct {
	Kind   Kind
	Params Params
	Score  float64
	Model  Classifier
}

// ModelPath returns the classifier file path.
func (a *Artifacts) ModelPath() string {
	return filepath.Join(a.dir, fmt.Sprintf("%s%s_cv_%s.gob", a.kind, a.scaler, a.metric))
}

// ScalerPath returns the scaler file path.
func (a *Artifacts) ScalerPath() string {
	return filepath.Join(a.dir, fmt.Sprintf("%s%s.gob", a.kind, a.scaler))
}

func (a *Artifacts) metaPath() string {
	return a.ModelPath() + ".meta"
}

// HasModel reports whether the classifier file exists.
func (a *Artifacts) HasModel() bool {
	_, err := os.Stat(a.ModelPath())
	return err == nil
}

// HasScaler reports whether the scaler file exists.
func (a *Artifacts) HasScaler() bool {
	_, err := os.Stat(a.ScalerPath())
	return err == nil
}

// Valid reports whether the classifier was trained on tables with the
// given fingerprints. A missing meta file is never valid.
func (a *Artifacts) Valid(sources ...duckdb.FileFingerprint) bool {
	meta, err := a.readMeta()
	if err != nil {
		return false
	}
	if meta["sources"] != strconv.Itoa(len(sources)) {
		return false
	}
	for i, s := range sources {
		if meta[fmt.Sprintf("source%d_size", i)] != strconv.FormatInt(s.Size, 10) ||
			meta[fmt.Sprintf("source%d_modtime", i)] != s.ModTime.UTC().Format(time.RFC3339Nano) {
			return false
		}
	}
	return a.HasModel()
}

// LoadModel reads the classifier.
func (a *Artifacts) LoadModel() (*Saved, error) {
	var s Saved
	if err := decodeFile(a.ModelPath(), &s); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if s.Model == nil {
		return nil, fmt.Errorf("load model: %s holds no classifier", a.ModelPath())
	}
	return &s, nil
}

// LoadScaler reads the scaler.
func (a *Artifacts) LoadScaler() (*Scaler, error) {
	var s Scaler
	if err := decodeFile(a.ScalerPath(), &s); err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	return &s, nil
}

// SaveModel writes the classifier and the fingerprints of the tables it was
// trained on.
func (a *Artifacts) SaveModel(s *Saved, sources ...duckdb.FileFingerprint) error {
	if err := encodeFile(a.ModelPath(), s); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return a.writeMeta(sources)
}

// SaveScaler writes the scaler.
func (a *Artifacts) SaveScaler(s *Scaler) error {
	if err := encodeFile(a.ScalerPath(), s); err != nil {
		return fmt.Errorf("save scaler: %w", err)
	}
	return nil
}

// Clear removes both artifacts and the meta file.
func (a *Artifacts) Clear() {
	os.Remove(a.ModelPath())
	os.Remove(a.metaPath())
	os.Remove(a.ScalerPath())
}

func encodeFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (a *Artifacts) writeMeta(sources []duckdb.FileFingerprint) error {
	lines := []string{"sources=" + strconv.Itoa(len(sources))}
	for i, s := range sources {
		lines = append(lines,
			fmt.Sprintf("source%d_path=%s", i, s.Path),
			fmt.Sprintf("source%d_size=%d", i, s.Size),
			fmt.Sprintf("source%d_modtime=%s", i, s.ModTime.UTC().Format(time.RFC3339Nano)),
		)
	}
	lines = append(lines, "created_at="+time.Now().UTC().Format(time.RFC3339), "")
	return os.WriteFile(a.metaPath(), []byte(strings.Join(lines, "\n")), 0644)
}

func (a *Artifacts) readMeta() (map[string]string, error) {
	data, err := os.ReadFile(a.metaPath())
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			meta[k] = v
		}
	}
	return meta, nil
}
