package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/normalize"
)

// Outlier screen output file names.
const (
	allSpreadsFile  = "All_Samples_with_MAD.tsv"
	keptSpreadsFile = "Samples_ToKeep_with_MAD.tsv"
)

func (a *app) newOutliersCmd() *cobra.Command {
	var (
		threshold float64
		outDir    string
	)
	cmd := &cobra.Command{
		Use:   "outliers <segmentation-dir>",
		Short: "Flag samples with a noisy autosomal segmentation",
		Long: `Compute the mean absolute deviation of the autosomal SegMean values of
<dir>/<sample>/HSLMResults_<sample>.txt for every sample and flag samples
above the threshold. Writes every sample's spread and the kept samples.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold < 0 {
				return &usageError{fmt.Errorf("--threshold must not be negative, got %g", threshold)}
			}
			values, err := normalize.SegmentDir(args[0])
			if err != nil {
				return err
			}
			spreads := normalize.MADOutliers(values, threshold)
			allPath := filepath.Join(outDir, allSpreadsFile)
			keepPath := filepath.Join(outDir, keptSpreadsFile)
			if err := normalize.WriteSpreads(allPath, keepPath, spreads); err != nil {
				return err
			}

			var outliers []string
			for _, s := range spreads {
				if s.Outlier {
					outliers = append(outliers, s.Sample)
				}
			}
			a.logger.Info("outlier screen finished",
				zap.Int("samples", len(spreads)),
				zap.Strings("outliers", outliers),
				zap.Float64("threshold", threshold))
			fmt.Fprintf(a.out, "%d of %d samples kept (threshold %g) -> %s\n",
				len(spreads)-len(outliers), len(spreads), threshold, keepPath)
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", normalize.DefaultMADThreshold, "SegMean MAD above which a sample is an outlier")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Output directory")
	return cmd
}
