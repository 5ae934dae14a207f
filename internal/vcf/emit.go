package vcf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/caller"
)

// Emitter writes per-sample VCF files from window tables.
type Emitter struct {
	Tiers     caller.Tiers
	Reference string
	// HCOnly selects the pre-filtered high-confidence window file of each
	// sample directory.
	HCOnly bool
	// Now stamps ##fileDate.
	Now func() time.Time

	logger *zap.Logger
}

// NewEmitter creates an emitter with the given tiers.
func NewEmitter(tiers caller.Tiers, reference string) *Emitter {
	return &Emitter{Tiers: tiers, Reference: reference, Now: time.Now, logger: zap.NewNop()}
}

// SetLogger sets the logger.
func (e *Emitter) SetLogger(l *zap.Logger) {
	e.logger = l
}

// EmitFile converts one window table into a VCF file for sample and
// returns the number of records written.
func (e *Emitter) EmitFile(sample, windows, out string) (int, error) {
	ws, err := ReadWindows(windows)
	if err != nil {
		return 0, err
	}
	recs, err := Records(ws, e.Tiers)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", windows, err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return 0, err
	}
	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("create vcf: %w", err)
	}
	vw := NewWriter(f, sample, e.Reference, e.Now(), e.Tiers)
	if err := vw.WriteHeader(); err != nil {
		f.Close()
		return 0, err
	}
	for i := range recs {
		if err := vw.Write(&recs[i]); err != nil {
			f.Close()
			return 0, err
		}
	}
	if err := vw.Flush(); err != nil {
		f.Close()
		return 0, err
	}
	return len(recs), f.Close()
}

// SampleName derives a sample name from its window directory.
func SampleName(dir string) string {
	return strings.Replace(filepath.Base(dir), "_TARGET", "", 1)
}

// WindowFile picks the window table of a sample directory: the one with
// PASS in its name when hcOnly is set, otherwise the first other one.
func WindowFile(dir string, hcOnly bool) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		if strings.Contains(n, caller.FilterPass) == hcOnly {
			return filepath.Join(dir, n), nil
		}
	}
	kind := "all-window"
	if hcOnly {
		kind = "high-confidence"
	}
	return "", fmt.Errorf("no %s window file in %s", kind, dir)
}

// EmitDir writes <vcfDir>/<sampleDir>/<sample>.vcf for every sample
// subdirectory of windowDir and returns the paths written.
func (e *Emitter) EmitDir(windowDir, vcfDir string) ([]string, error) {
	entries, err := os.ReadDir(windowDir)
	if err != nil {
		return nil, err
	}
	var written []string
	for _, d := range entries {
		if !d.IsDir() {
			continue
		}
		sample := SampleName(d.Name())
		in, err := WindowFile(filepath.Join(windowDir, d.Name()), e.HCOnly)
		if err != nil {
			return written, err
		}
		out := filepath.Join(vcfDir, d.Name(), sample+".vcf")
		n, err := e.EmitFile(sample, in, out)
		if err != nil {
			return written, err
		}
		e.logger.Info("wrote vcf",
			zap.String("sample", sample),
			zap.String("windows", in),
			zap.String("vcf", out),
			zap.Int("records", n))
		written = append(written, out)
	}
	return written, nil
}
