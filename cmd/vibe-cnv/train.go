package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-cnv/internal/config"
	"github.com/inodb/vibe-cnv/internal/dataset"
	"github.com/inodb/vibe-cnv/internal/evaluate"
	"github.com/inodb/vibe-cnv/internal/model"
	"github.com/inodb/vibe-cnv/internal/training"
)

// trainingOptions converts the training section of c.
func trainingOptions(c *config.Config) (training.Options, error) {
	t := c.Training
	metric, err := evaluate.ParseMetric(t.Metric)
	if err != nil {
		return training.Options{}, err
	}
	avg, err := evaluate.ParseAveraging(t.Averaging)
	if err != nil {
		return training.Options{}, err
	}
	scaler, err := model.ParseScaler(t.Scaler)
	if err != nil {
		return training.Options{}, err
	}
	kinds := make([]model.Kind, len(t.Models))
	for i, m := range t.Models {
		if kinds[i], err = model.ParseKind(m); err != nil {
			return training.Options{}, err
		}
	}
	weights, err := c.ClassWeights()
	if err != nil {
		return training.Options{}, err
	}
	return training.Options{
		DatasetDir: c.TrainDatasetDir(),
		OutDir:     c.TrainingDir(),
		Simulated:  t.Simulated,
		Split:      dataset.SplitOptions{TestFraction: t.TestFraction, TrainSamples: t.TrainSamples},
		Noise:      t.Noise,
		Mu:         t.Mu,
		Sigma:      t.Sigma,
		Models:     kinds,
		Scaler:     scaler,
		Search: model.SearchOptions{
			Folds:      t.Folds,
			Metric:     metric,
			Random:     t.Search == "random",
			Iterations: t.Iterations,
			Threads:    c.Threads,
			Weights:    weights,
			Seed:       c.Seed,
		},
		Averaging:    avg,
		ParamsDir:    t.ParamsDir,
		Force:        t.Force,
		SkipChrXTest: t.SkipChrXTest,
		Seed:         c.Seed,
	}, nil
}

func (a *app) newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and validate copy-number models",
		Long: `Split the XLR training table, search hyperparameters with stratified
cross-validation for every configured model, persist model and scaler, and
validate on the held-out XLR rows and the noSegDup and SegDup subsets.
Persisted models are reloaded unless --force is given.`,
		Example: `  vibe-cnv train --config run.yaml
  vibe-cnv train --models LR,RF --noise --threads 8
  vibe-cnv train --train-samples 13000 --force`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.load(cmd, map[string]string{
				"models":         "training.models",
				"test-fraction":  "training.test_fraction",
				"train-samples":  "training.train_samples",
				"noise":          "training.noise",
				"force":          "training.force",
				"skip-chrx-test": "training.skip_chrx_test",
				"simulated":      "training.simulated",
				"threads":        "threads",
			}, "main_outdir_host", "exp_id")
			if err != nil {
				return err
			}
			if c.Training.Simulated != "" {
				if err := c.Require("training.simulated"); err != nil {
					return err
				}
			}
			opt, err := trainingOptions(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r := training.NewRunner(opt)
			r.SetLogger(a.logger)
			outcomes, err := r.Run(ctx)
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				state := "trained"
				if o.Model.Reloaded {
					state = "reloaded"
				}
				fmt.Fprintf(a.out, "%s %s %s (cv %s %.4f) -> %s\n",
					o.Kind, state, o.Model.Params, opt.Search.Metric.Name, o.Model.Score, o.Dir)
				for _, rep := range o.Reports {
					fmt.Fprintf(a.out, "  %-10s accuracy %.4f  f1_%s %.4f\n",
						rep.Subset, rep.Confusion.Accuracy(), opt.Averaging, rep.Confusion.AvgF1(opt.Averaging))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("models", nil, "Models to train (LR, RF)")
	cmd.Flags().Float64("test-fraction", 0.2, "Fraction of XLR rows held out")
	cmd.Flags().Int("train-samples", 0, "Exact XLR training row count (overrides --test-fraction)")
	cmd.Flags().Bool("noise", false, "Add Gaussian-noise copies of every row")
	cmd.Flags().Bool("force", false, "Retrain even when a persisted model exists")
	cmd.Flags().Bool("skip-chrx-test", false, "Skip validation on the noSegDup and SegDup subsets")
	cmd.Flags().String("simulated", "", "Table of simulated double deletions to merge")
	cmd.Flags().Int("threads", 3, "Parallel cross-validation fits")
	return cmd
}
