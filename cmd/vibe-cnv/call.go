package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/caller"
	"github.com/inodb/vibe-cnv/internal/config"
	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/duckdb"
	"github.com/inodb/vibe-cnv/internal/evaluate"
	"github.com/inodb/vibe-cnv/internal/model"
	"github.com/inodb/vibe-cnv/internal/training"
)

// modelArtifacts locates the persisted model named by the calling section.
func modelArtifacts(c *config.Config) (*model.Artifacts, error) {
	kind, err := model.ParseKind(c.Calling.Model)
	if err != nil {
		return nil, err
	}
	scaler, err := model.ParseScaler(c.Training.Scaler)
	if err != nil {
		return nil, err
	}
	metric, err := evaluate.ParseMetric(c.Training.Metric)
	if err != nil {
		return nil, err
	}
	dir := c.Calling.ModelDir
	if dir == "" {
		split := dataset.SplitOptions{TestFraction: c.Training.TestFraction, TrainSamples: c.Training.TrainSamples}
		dir = filepath.Join(c.TrainingDir(), training.ModelDir(kind, split, c.Training.Noise))
	}
	return model.NewArtifacts(dir, kind, scaler, metric.Name), nil
}

func (a *app) newCallCmd() *cobra.Command {
	var resetStore bool
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Call every sample of the input directory",
		Long: `Apply a trained model to every <ID>_TARGET.txt.gz table of the input
directory, in parallel across samples. Each sample gets a call table and a
summary; samples fail independently and any failure makes the command exit
non-zero after the remaining samples are called.`,
		Example: `  vibe-cnv call --config run.yaml
  vibe-cnv call --model RF --skip-tested --threads 8
  vibe-cnv call --input /data/targets --force-median-norm`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.load(cmd, map[string]string{
				"model":             "calling.model",
				"model-dir":         "calling.model_dir",
				"input":             "calling.input_dir",
				"skip-tested":       "calling.skip_tested",
				"force-median-norm": "calling.force_median_norm",
				"threads":           "threads",
				"store":             "store",
			}, "main_outdir_host", "exp_id")
			if err != nil {
				return err
			}

			art, err := modelArtifacts(c)
			if err != nil {
				return err
			}
			m, err := model.Load(art)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			a.logger.Info("loaded model",
				zap.String("model", art.ModelPath()),
				zap.String("params", m.Params.String()))

			name := string(m.Kind)
			b := caller.NewBatch(m, name, c.CallOutDir(name))
			b.SetLogger(a.logger)
			b.SkipTested = c.Calling.SkipTested
			b.ForceMedianNorm = c.Calling.ForceMedianNorm
			b.Workers = c.Threads

			var store *duckdb.Store
			if c.StorePath() != "" {
				if store, err = duckdb.Open(c.StorePath()); err != nil {
					return fmt.Errorf("open store: %w", err)
				}
				defer store.Close()
				if resetStore {
					if err := store.ClearCalls(); err != nil {
						return fmt.Errorf("reset store: %w", err)
					}
				}
				b.Store = store
			}

			items, err := caller.Inputs(c.CallDatasetDir())
			if err != nil {
				return err
			}
			res, runErr := b.Run(items)
			if res != nil {
				fmt.Fprintf(a.out, "%s: %d called, %d skipped, %d failed -> %s\n",
					name, len(res.Called), len(res.Skipped), len(res.Failed), b.OutDir)
			}
			if store != nil && runErr == nil {
				counts, err := store.CallCounts(name)
				if err != nil {
					return err
				}
				a.logger.Info("store updated",
					zap.String("path", c.StorePath()),
					zap.Int("samples", len(counts)))
			}
			return runErr
		},
	}
	cmd.Flags().String("model", "LR", "Model to call with (LR, RF)")
	cmd.Flags().String("model-dir", "", "Directory of the persisted model (default derived from the training section)")
	cmd.Flags().String("input", "", "Directory of <ID>_TARGET.txt.gz tables")
	cmd.Flags().Bool("skip-tested", false, "Leave samples with an existing call table untouched")
	cmd.Flags().Bool("force-median-norm", false, "Recentre each sample on its autosomal median")
	cmd.Flags().Int("threads", 3, "Samples called in parallel")
	cmd.Flags().String("store", "", "DuckDB file to record calls in")
	cmd.Flags().BoolVar(&resetStore, "reset-store", false, "Drop every recorded call before calling")
	return cmd
}
