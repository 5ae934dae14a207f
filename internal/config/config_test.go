package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cnv/internal/dataset"
)

func load(t *testing.T, yaml string) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	c, err := Load(v)
	require.NoError(t, err)
	return c
}

func TestLoad_Defaults(t *testing.T) {
	c := load(t, "exp_id: run1\nmain_outdir_host: /data\n")

	assert.Equal(t, "run1", c.ExpID)
	assert.Equal(t, 3, c.Threads)
	assert.Equal(t, uint64(42), c.Seed)
	assert.Equal(t, 0.2, c.Training.TestFraction)
	assert.Equal(t, 0.05, c.Training.Sigma)
	assert.Equal(t, 10, c.Training.Folds)
	assert.Equal(t, "f1_macro", c.Training.Metric)
	assert.Equal(t, "RobustScaler", c.Training.Scaler)
	assert.Equal(t, []string{"LR"}, c.Training.Models)
	assert.Equal(t, 0.9, c.Calling.Tiers.High)
	assert.Equal(t, 0.7, c.Calling.Tiers.Medium)
	assert.Equal(t, "unspecified", c.VCF.Reference)
	assert.NoError(t, c.Validate())

	assert.Equal(t, filepath.Join("/data", "run1", "datasets", "train"), c.TrainDatasetDir())
	assert.Equal(t, filepath.Join("/data", "run1", "calls", "LR"), c.CallOutDir("LR"))
	assert.Equal(t, filepath.Join("/data", "run1", "VCF"), c.VCFOutDir())
}

func TestLoad_Sections(t *testing.T) {
	c := load(t, `
threads: 8
training:
  train_samples: 500
  noise: true
  models: [LR, RF]
  search: random
  n_iter: 5
calling:
  skip_tested: true
  input_dir: /in
  confidence:
    high: 0.95
    medium: 0.5
vcf:
  hc_only: true
  out_dir: /out
`)
	assert.Equal(t, 8, c.Threads)
	assert.Equal(t, 500, c.Training.TrainSamples)
	assert.True(t, c.Training.Noise)
	assert.Equal(t, []string{"LR", "RF"}, c.Training.Models)
	assert.True(t, c.Calling.SkipTested)
	assert.Equal(t, "/in", c.CallDatasetDir())
	assert.Equal(t, 0.95, c.Calling.Tiers.High)
	assert.True(t, c.VCF.HCOnly)
	assert.Equal(t, "/out", c.VCFOutDir())
	assert.NoError(t, c.Validate())
}

func TestValidate_ListsEveryProblem(t *testing.T) {
	c := load(t, `
threads: 0
training:
  test_fraction: 1.5
  k: 1
  metric: nonsense
  scaler: Fancy
  models: [SVM]
  search: exhaustive
calling:
  confidence:
    high: 0.5
    medium: 0.8
`)
	err := c.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 8)
	for _, key := range []string{"threads", "test_fraction", "training.k", "metric", "scaler", "models", "search", "confidence"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate_TrainSamplesOverridesFraction(t *testing.T) {
	c := load(t, "training:\n  test_fraction: 0\n  train_samples: 100\n")
	assert.NoError(t, c.Validate())
}

func TestClassWeights(t *testing.T) {
	c := load(t, "")
	cw, err := c.ClassWeights()
	require.NoError(t, err)
	assert.Equal(t, 1.8, cw[dataset.Normal])
	assert.Equal(t, 1.6, cw[dataset.Duplication])
	assert.Len(t, cw, 5)

	c.Training.ClassWeights = map[string]float64{"3": 1}
	_, err = c.ClassWeights()
	assert.Error(t, err)

	c.Training.ClassWeights = map[string]float64{"x": 1}
	_, err = c.ClassWeights()
	assert.Error(t, err)

	c.Training.ClassWeights = map[string]float64{"0": -1}
	_, err = c.ClassWeights()
	assert.Error(t, err)
}

func TestRequire(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.bed")
	require.NoError(t, os.WriteFile(target, []byte("chr1\t1\t10\n"), 0644))

	c := &Config{Target: target, Ref: filepath.Join(dir, "missing.fa"), ExpID: "e"}
	assert.NoError(t, c.Require("target", "exp_id"))

	err := c.Require("target", "ref", "map", "exp_id", "main_outdir_host")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 3)
	assert.Contains(t, ve.Problems[0], "missing.fa")
	assert.Contains(t, ve.Problems[1], `"map"`)
	assert.Contains(t, ve.Problems[2], `"main_outdir_host"`)
}
