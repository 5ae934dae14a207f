// Package config holds the typed run configuration read through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/inodb/vibe-cnv/internal/caller"
	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/evaluate"
	"github.com/inodb/vibe-cnv/internal/model"
)

// Config is the run configuration document.
type Config struct {
	OutDir string `mapstructure:"main_outdir_host"`
	ExpID  string `mapstructure:"exp_id"`

	Target string `mapstructure:"target"`
	Ref    string `mapstructure:"ref"`
	Map    string `mapstructure:"map"`
	Gap    string `mapstructure:"gap"`
	Centro string `mapstructure:"centro"`
	PAR    string `mapstructure:"par"`
	XLR    string `mapstructure:"xlr"`
	SegDup string `mapstructure:"segdup"`

	Samples   string `mapstructure:"samples"`
	Pool      string `mapstructure:"pool"`
	SignalDir string `mapstructure:"signal_dir"`
	BAMDir    string `mapstructure:"bam_dir"`
	// Store is an optional DuckDB file receiving every call.
	Store string `mapstructure:"store"`

	Threads int    `mapstructure:"threads"`
	Seed    uint64 `mapstructure:"seed"`

	Training Training `mapstructure:"training"`
	Calling  Calling  `mapstructure:"calling"`
	VCF      VCF      `mapstructure:"vcf"`
}

// Training configures dataset splitting and model fitting.
type Training struct {
	TestFraction float64 `mapstructure:"test_fraction"`
	// TrainSamples, when positive, fixes the XLR training set size and
	// overrides TestFraction.
	TrainSamples int     `mapstructure:"train_samples"`
	Noise        bool    `mapstructure:"noise"`
	Mu           float64 `mapstructure:"mu"`
	Sigma        float64 `mapstructure:"sigma"`
	Folds        int     `mapstructure:"k"`
	Metric       string  `mapstructure:"metric"`
	Averaging    string  `mapstructure:"averaging"`
	// Search is "grid" or "random".
	Search       string             `mapstructure:"search"`
	Iterations   int                `mapstructure:"n_iter"`
	Scaler       string             `mapstructure:"scaler"`
	Models       []string           `mapstructure:"models"`
	ClassWeights map[string]float64 `mapstructure:"class_weights"`
	// ParamsDir holds optional <MODEL>_cv_params grid files.
	ParamsDir    string `mapstructure:"params_dir"`
	Simulated    string `mapstructure:"simulated"`
	Force        bool   `mapstructure:"force"`
	SkipChrXTest bool   `mapstructure:"skip_chrx_test"`
}

// Calling configures batch inference.
type Calling struct {
	Model           string       `mapstructure:"model"`
	ModelDir        string       `mapstructure:"model_dir"`
	InputDir        string       `mapstructure:"input_dir"`
	SkipTested      bool         `mapstructure:"skip_tested"`
	ForceMedianNorm bool         `mapstructure:"force_median_norm"`
	Tiers           caller.Tiers `mapstructure:"confidence"`
}

// VCF configures VCF emission.
type VCF struct {
	WindowDir string `mapstructure:"window_dir"`
	OutDir    string `mapstructure:"out_dir"`
	Reference string `mapstructure:"reference"`
	HCOnly    bool   `mapstructure:"hc_only"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("threads", 3)
	v.SetDefault("seed", 42)
	v.SetDefault("training.test_fraction", 0.2)
	v.SetDefault("training.train_samples", 0)
	v.SetDefault("training.noise", false)
	v.SetDefault("training.mu", 0.0)
	v.SetDefault("training.sigma", 0.05)
	v.SetDefault("training.k", 10)
	v.SetDefault("training.metric", "f1_macro")
	v.SetDefault("training.averaging", "macro")
	v.SetDefault("training.search", "grid")
	v.SetDefault("training.n_iter", 100)
	v.SetDefault("training.scaler", "RobustScaler")
	v.SetDefault("training.models", []string{"LR"})
	v.SetDefault("training.class_weights", map[string]float64{"-2": 1, "-1": 1, "0": 1.8, "1": 1.6, "2": 1})
	v.SetDefault("calling.model", "LR")
	v.SetDefault("calling.confidence.high", 0.9)
	v.SetDefault("calling.confidence.medium", 0.7)
	v.SetDefault("vcf.reference", "unspecified")
}

// Load decodes the settings of v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration (%d problem(s)):\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}

func (c *Config) value(key string) string {
	switch key {
	case "main_outdir_host":
		return c.OutDir
	case "exp_id":
		return c.ExpID
	case "target":
		return c.Target
	case "ref":
		return c.Ref
	case "map":
		return c.Map
	case "gap":
		return c.Gap
	case "centro":
		return c.Centro
	case "par":
		return c.PAR
	case "xlr":
		return c.XLR
	case "segdup":
		return c.SegDup
	case "samples":
		return c.Samples
	case "pool":
		return c.Pool
	case "signal_dir":
		return c.SignalDir
	case "bam_dir":
		return c.BAMDir
	case "training.simulated":
		return c.Training.Simulated
	case "vcf.window_dir":
		return c.VCF.WindowDir
	}
	return ""
}

// pathKeys name files or directories that must exist when set.
var pathKeys = map[string]bool{
	"target": true, "ref": true, "map": true, "gap": true, "centro": true,
	"par": true, "xlr": true, "segdup": true, "samples": true, "pool": true,
	"signal_dir": true, "bam_dir": true, "training.simulated": true, "vcf.window_dir": true,
}

// Require checks that every named key is set and, for path keys, that the
// file exists. All problems are reported together.
func (c *Config) Require(keys ...string) error {
	var problems []string
	for _, k := range keys {
		v := c.value(k)
		if v == "" {
			problems = append(problems, fmt.Sprintf("missing required key %q", k))
			continue
		}
		if pathKeys[k] {
			if _, err := os.Stat(v); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %s does not exist", k, v))
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Validate checks the value constraints of every section.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Threads < 1 {
		add("threads must be at least 1, got %d", c.Threads)
	}
	t := c.Training
	if t.TrainSamples <= 0 && (t.TestFraction <= 0 || t.TestFraction >= 1) {
		add("training.test_fraction must be in (0, 1), got %g", t.TestFraction)
	}
	if t.TrainSamples < 0 {
		add("training.train_samples must not be negative, got %d", t.TrainSamples)
	}
	if t.Sigma < 0 {
		add("training.sigma must not be negative, got %g", t.Sigma)
	}
	if t.Folds < 2 {
		add("training.k must be at least 2, got %d", t.Folds)
	}
	if _, err := evaluate.ParseMetric(t.Metric); err != nil {
		add("training.metric: %v", err)
	}
	if _, err := evaluate.ParseAveraging(t.Averaging); err != nil {
		add("training.averaging: %v", err)
	}
	switch t.Search {
	case "grid", "random":
	default:
		add("training.search must be grid or random, got %q", t.Search)
	}
	if t.Search == "random" && t.Iterations < 1 {
		add("training.n_iter must be at least 1, got %d", t.Iterations)
	}
	if _, err := model.ParseScaler(t.Scaler); err != nil {
		add("training.scaler: %v", err)
	}
	if len(t.Models) == 0 {
		add("training.models must name at least one model")
	}
	for _, m := range t.Models {
		if _, err := model.ParseKind(m); err != nil {
			add("training.models: %v", err)
		}
	}
	if _, err := c.ClassWeights(); err != nil {
		add("training.class_weights: %v", err)
	}
	if _, err := model.ParseKind(c.Calling.Model); err != nil {
		add("calling.model: %v", err)
	}
	if err := c.Calling.Tiers.Validate(); err != nil {
		add("calling.confidence: %v", err)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ClassWeights converts the configured weights to model class weights.
func (c *Config) ClassWeights() (model.ClassWeights, error) {
	cw := make(model.ClassWeights, len(c.Training.ClassWeights))
	keys := make([]string, 0, len(c.Training.ClassWeights))
	for k := range c.Training.ClassWeights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("class %q is not an integer", k)
		}
		cl, err := dataset.ParseClass(float64(n))
		if err != nil {
			return nil, err
		}
		w := c.Training.ClassWeights[k]
		if w <= 0 {
			return nil, fmt.Errorf("class %d has non-positive weight %g", n, w)
		}
		cw[cl] = w
	}
	return cw, nil
}

// ExpDir is the root of every output of the experiment.
func (c *Config) ExpDir() string {
	return filepath.Join(c.OutDir, c.ExpID)
}

// AnnotatedTarget is the annotated target table path.
func (c *Config) AnnotatedTarget() string {
	return filepath.Join(c.ExpDir(), "annotated_target.txt")
}

// TrainDatasetDir holds the labelled chrX tables.
func (c *Config) TrainDatasetDir() string {
	return filepath.Join(c.ExpDir(), "datasets", "train")
}

// CallDatasetDir holds the per-sample inference tables.
func (c *Config) CallDatasetDir() string {
	if c.Calling.InputDir != "" {
		return c.Calling.InputDir
	}
	return filepath.Join(c.ExpDir(), "datasets", "call")
}

// TrainingDir holds one folder per trained model.
func (c *Config) TrainingDir() string {
	return filepath.Join(c.ExpDir(), "training")
}

// CallOutDir holds the call tables of one model.
func (c *Config) CallOutDir(model string) string {
	return filepath.Join(c.ExpDir(), "calls", model)
}

// VCFOutDir holds the emitted VCF files.
func (c *Config) VCFOutDir() string {
	if c.VCF.OutDir != "" {
		return c.VCF.OutDir
	}
	return filepath.Join(c.ExpDir(), "VCF")
}

// StorePath returns the DuckDB file, empty when none is configured.
func (c *Config) StorePath() string {
	return c.Store
}
