package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// runCLI executes the command line with a silent logger and an isolated home.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout)
	a.newLogger = func(bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	code := a.execute(args, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestUsageErrors(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "unknown command")

	code, _, _ = runCLI(t, "call", "--no-such-flag")
	assert.Equal(t, ExitUsage, code)

	code, _, _ = runCLI(t, "outliers")
	assert.Equal(t, ExitUsage, code)

	code, _, stderr = runCLI(t, "vcf")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "vcf.window_dir")
}

func TestConfigShowSetGet(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "run.yaml")
	writeFile(t, cfg, "exp_id: run1\nmain_outdir_host: /data\n")

	code, out, _ := runCLI(t, "--config", cfg, "config")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "exp_id: run1")
	assert.Contains(t, out, "test_fraction: 0.2")

	code, _, _ = runCLI(t, "--config", cfg, "config", "set", "training.noise", "true")
	require.Equal(t, ExitSuccess, code)
	code, out, _ = runCLI(t, "--config", cfg, "config", "get", "training.noise")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "true\n", out)

	code, _, stderr := runCLI(t, "--config", cfg, "config", "set", "training.scaler", "Fancy")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "training.scaler")

	code, _, _ = runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	assert.Equal(t, ExitError, code)
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "run.yaml")
	writeFile(t, cfg, "exp_id: run1\nmain_outdir_host: "+dir+"\ntarget: "+filepath.Join(dir, "nope.bed")+"\n")

	code, _, stderr := runCLI(t, "--config", cfg, "config", "check")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "nope.bed")

	writeFile(t, filepath.Join(dir, "nope.bed"), "chr1\t1\t10\n")
	code, out, _ := runCLI(t, "--config", cfg, "config", "check")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Configuration OK")
}

func TestVCFCommand(t *testing.T) {
	windows := t.TempDir()
	out := filepath.Join(t.TempDir(), "VCF")
	writeFile(t, filepath.Join(windows, "S1_TARGET", "S1_windows.tsv"),
		"Chr\tStart\tEnd\tState\tCN\tProbCall\tp_error\tMedian_NRC\twindow_length\n"+
			"chrX\t1001\t2000\tDUP\t3\t0.95\t0.01\t0.55\t1000\n")

	code, stdout, stderr := runCLI(t, "vcf", "--window-dir", windows, "--out-dir", out, "--reference", "GRCh38")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "1 VCF file(s)")

	data, err := os.ReadFile(filepath.Join(out, "S1_TARGET", "S1.vcf"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "##reference=GRCh38")
	assert.Contains(t, string(data), "chrX\t1000\tvibe-cnv_DUP_1\t.\t<DUP>\t20.00\tPASS\t")
}

func TestOutliersCommand(t *testing.T) {
	segs := t.TempDir()
	writeFile(t, filepath.Join(segs, "S1", "HSLMResults_S1.txt"),
		"Chromosome\tSegMean\nchr1\t0.01\nchr1\t-0.01\nchrX\t5\n")
	writeFile(t, filepath.Join(segs, "S2", "HSLMResults_S2.txt"),
		"Chromosome\tSegMean\nchr1\t1\nchr1\t-1\n")
	out := t.TempDir()

	code, stdout, stderr := runCLI(t, "outliers", segs, "-o", out)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "1 of 2 samples kept")

	kept, err := os.ReadFile(filepath.Join(out, keptSpreadsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(kept)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "S1\t"))
}

func TestCallCommand_NoModel(t *testing.T) {
	dir := t.TempDir()
	code, _, stderr := runCLI(t, "call", "--model-dir", filepath.Join(dir, "none"))
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "main_outdir_host")

	cfg := filepath.Join(dir, "run.yaml")
	writeFile(t, cfg, "exp_id: run1\nmain_outdir_host: "+dir+"\n")
	code, _, stderr = runCLI(t, "--config", cfg, "call")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "load model")
}
