package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/annotate"
	"github.com/inodb/vibe-cnv/internal/config"
	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/normalize"
	"github.com/inodb/vibe-cnv/internal/samplesheet"
)

func (a *app) newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the sample sheet and the alignments it lists",
		Long: `Validate every row of the sample sheet, check that every BAM exists and
that every mixture training sample pairs with a female training sample.
All problems are reported before failing.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.load(cmd, map[string]string{"samples": "samples", "bam-dir": "bam_dir"}, "samples")
			if err != nil {
				return err
			}
			sheet, err := readSheet(c)
			if err != nil {
				return err
			}
			if err := sheet.CheckBAMs(c.BAMDir); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d samples: %d training, %d to call; all alignments present\n",
				len(sheet.Samples), len(sheet.Train()), len(sheet.Call()))
			return nil
		},
	}
	cmd.Flags().String("samples", "", "Sample sheet")
	cmd.Flags().String("bam-dir", "", "Directory relative BAM paths are resolved against")
	return cmd
}

// readSheet reads the sample sheet and pairs mixture training samples.
func readSheet(c *config.Config) (*samplesheet.Sheet, error) {
	sheet, err := samplesheet.Read(c.Samples)
	if err != nil {
		return nil, err
	}
	if _, err := sheet.PairMixtures(); err != nil {
		return nil, err
	}
	return sheet, nil
}

// signalPath finds <dir>/<id>.txt.gz or <dir>/<id>.txt.
func signalPath(dir, id string) (string, error) {
	for _, name := range []string{id + ".txt.gz", id + ".txt"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no signal table for sample %s in %s", id, dir)
}

func (a *app) newDatasetsCmd() *cobra.Command {
	var annotated string
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Build training and inference feature tables",
		Long: `Normalize every sample against the pool, write one inference table per
sample to call and the labelled ALL_SAMPLE chrX tables for training samples.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.load(cmd, map[string]string{
				"samples":    "samples",
				"pool":       "pool",
				"signal-dir": "signal_dir",
				"seed":       "seed",
			}, "main_outdir_host", "exp_id", "samples", "pool", "signal_dir")
			if err != nil {
				return err
			}
			if annotated == "" {
				annotated = c.AnnotatedTarget()
			}

			sheet, err := readSheet(c)
			if err != nil {
				return err
			}
			regions, err := annotate.ReadTable(annotated)
			if err != nil {
				return fmt.Errorf("read annotated target: %w", err)
			}
			pool, err := normalize.ReadSignal(c.Pool)
			if err != nil {
				return fmt.Errorf("read pool: %w", err)
			}

			b := dataset.NewBuilder(regions, pool)
			b.SetLogger(a.logger)
			b.TrainDir = c.TrainDatasetDir()
			b.CallDir = c.CallDatasetDir()
			b.Seed = c.Seed
			if len(sheet.Train()) > 0 {
				if err := c.Require("par", "xlr", "segdup"); err != nil {
					return err
				}
				res, err := dataset.ReadResources(c.PAR, c.XLR, c.SegDup)
				if err != nil {
					return err
				}
				if b.Partitioner, err = dataset.NewPartitioner(dataset.Targets(regions), res); err != nil {
					return err
				}
			}

			var inputs []dataset.SampleInput
			for _, s := range sheet.Samples {
				if !s.IsTrain() && !s.IsCall() {
					continue
				}
				p, err := signalPath(c.SignalDir, s.ID)
				if err != nil {
					return err
				}
				inputs = append(inputs, dataset.SampleInput{Sample: s, SignalPath: p})
			}

			res, err := b.Build(inputs)
			if err != nil {
				return err
			}
			a.logger.Info("datasets built",
				zap.Int("call_tables", len(res.CallFiles)),
				zap.Any("training_rows", res.Training))
			return nil
		},
	}
	cmd.Flags().String("samples", "", "Sample sheet")
	cmd.Flags().String("pool", "", "Pool signal table")
	cmd.Flags().String("signal-dir", "", "Directory of per-sample signal tables (<ID>.txt[.gz])")
	cmd.Flags().Uint64("seed", 42, "Seed for multi-duplication subsampling")
	cmd.Flags().StringVar(&annotated, "annotated", "", "Annotated target table (default <main_outdir_host>/<exp_id>/annotated_target.txt)")
	return cmd
}
