package dataset

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/inodb/vibe-cnv/internal/annotate"
	"github.com/inodb/vibe-cnv/internal/genome"
	"github.com/inodb/vibe-cnv/internal/normalize"
	"github.com/inodb/vibe-cnv/internal/samplesheet"
	"github.com/inodb/vibe-cnv/internal/tsv"
)

// Output file names of a dataset build.
const (
	XLRFile           = "ALL_SAMPLE_XLR.txt.gz"
	SegDupFile        = "ALL_SAMPLE_SegDup.txt.gz"
	NoSegDupFile      = "ALL_SAMPLE_noSegDup.txt.gz"
	DDUPFile          = "ALL_SAMPLE_DDUP.txt.gz"
	FemaleMediansFile = "female_autosomal_medians.txt"
	TargetSuffix      = "_TARGET.txt.gz"
)

// TargetFile returns the name of a sample's inference table.
func TargetFile(sample string) string {
	return sample + TargetSuffix
}

// SampleInput is a sample and the path of its signal table.
type SampleInput struct {
	Sample     samplesheet.Sample
	SignalPath string
}

// Builder normalizes samples against the pool and writes the training and
// inference feature tables.
type Builder struct {
	Regions []annotate.Region
	Pool    []normalize.Signal
	// Partitioner is required when any sample is a training sample.
	Partitioner *Partitioner
	TrainDir    string
	CallDir     string
	Seed        uint64

	logger *zap.Logger
}

// NewBuilder creates a builder.
func NewBuilder(regions []annotate.Region, pool []normalize.Signal) *Builder {
	return &Builder{Regions: regions, Pool: pool, Seed: 42, logger: zap.NewNop()}
}

// SetLogger sets the logger for progress messages.
func (b *Builder) SetLogger(l *zap.Logger) {
	b.logger = l
}

// BuildResult summarises a dataset build.
type BuildResult struct {
	Training  map[string]int // subset name -> rows
	CallFiles []string
	// FemaleMedians holds the autosomal median ratio of each female
	// training sample.
	FemaleMedians map[string]float64
}

// Targets returns the interval of every annotated region.
func Targets(regions []annotate.Region) []genome.Interval {
	out := make([]genome.Interval, len(regions))
	for i, r := range regions {
		out[i] = r.Interval
	}
	return out
}

// Sample normalizes one sample against the pool and attaches annotations.
// Ratios are not recentred.
func (b *Builder) Sample(in SampleInput) ([]Row, *normalize.Profile, error) {
	signal, err := normalize.ReadSignal(in.SignalPath)
	if err != nil {
		return nil, nil, err
	}
	prof, err := normalize.NewProfile(in.Sample.ID, signal, b.Pool)
	if err != nil {
		return nil, nil, err
	}
	rows, err := Join(in.Sample.ID, b.Regions, prof.Ratios)
	if err != nil {
		return nil, nil, err
	}
	return rows, prof, nil
}

// Build processes every sample. Training samples are labelled from their
// gender, partitioned, and accumulated into the ALL_SAMPLE tables; samples
// to be called get their own inference table. Mixture samples also
// contribute capped multi-duplication rows.
func (b *Builder) Build(samples []SampleInput) (*BuildResult, error) {
	res := &BuildResult{Training: make(map[string]int), FemaleMedians: make(map[string]float64)}
	xlr := &Table{Labeled: true}
	seg := &Table{Labeled: true}
	noseg := &Table{Labeled: true}
	ddup := &Table{Labeled: true}
	var females []string
	training := false

	for _, in := range samples {
		s := in.Sample
		if !s.IsTrain() && !s.IsCall() {
			continue
		}
		b.logger.Info("processing sample", zap.String("sample", s.ID), zap.Strings("types", s.Types))

		rows, prof, err := b.Sample(in)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.ID, err)
		}

		if s.IsCall() {
			p := filepath.Join(b.CallDir, TargetFile(s.ID))
			if err := WriteTable(p, &Table{Rows: rows}); err != nil {
				return nil, err
			}
			res.CallFiles = append(res.CallFiles, p)
		}
		if !s.IsTrain() {
			continue
		}
		training = true
		if b.Partitioner == nil {
			return nil, fmt.Errorf("sample %s: training samples need XLR, SegDup and PAR regions", s.ID)
		}

		class, err := LabelFor(s.Gender)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.ID, err)
		}
		part, err := b.Partitioner.Split(s.ID, rows)
		if err != nil {
			return nil, err
		}
		xlr.Rows = append(xlr.Rows, labelled(part.XLR, class)...)
		seg.Rows = append(seg.Rows, labelled(part.SegDup, class)...)
		noseg.Rows = append(noseg.Rows, labelled(part.NoSegDup, class)...)

		switch s.Gender {
		case samplesheet.Female:
			res.FemaleMedians[s.ID] = prof.AutosomalMedian()
			females = append(females, s.ID)
		case samplesheet.MaleFemale:
			cand := DDUPCandidates(rows)
			capped := CapToXLR(cand, len(part.XLR), rand.New(rand.NewSource(b.Seed)))
			b.logger.Info("selected multi-duplication rows",
				zap.String("sample", s.ID),
				zap.Int("candidates", len(cand)),
				zap.Int("kept", len(capped)))
			ddup.Rows = append(ddup.Rows, capped...)
		}
	}

	if !training {
		return res, nil
	}
	for name, t := range map[string]*Table{XLRFile: xlr, SegDupFile: seg, NoSegDupFile: noseg, DDUPFile: ddup} {
		if err := WriteTable(filepath.Join(b.TrainDir, name), t); err != nil {
			return nil, err
		}
	}
	res.Training[SubsetXLR] = len(xlr.Rows)
	res.Training[SubsetSegDup] = len(seg.Rows)
	res.Training[SubsetNoSegDup] = len(noseg.Rows)
	res.Training[SubsetDDUP] = len(ddup.Rows)

	if err := writeMedians(filepath.Join(b.TrainDir, FemaleMediansFile), females, res.FemaleMedians); err != nil {
		return nil, err
	}
	b.logger.Info("training datasets written",
		zap.String("dir", b.TrainDir),
		zap.Int("xlr", len(xlr.Rows)),
		zap.Int("segdup", len(seg.Rows)),
		zap.Int("nosegdup", len(noseg.Rows)),
		zap.Int("ddup", len(ddup.Rows)))
	return res, nil
}

func labelled(rows []Row, c Class) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		r.Class = c
		out[i] = r
	}
	return out
}

func writeMedians(path string, ids []string, medians map[string]float64) error {
	w, err := tsv.Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteHeader("F_ID", "AutNRC_poolNorm_median"); err != nil {
		w.Close()
		return err
	}
	for _, id := range ids {
		if err := w.Write(id, tsv.Float(medians[id])); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
