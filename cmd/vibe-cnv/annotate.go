package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/annotate"
)

func (a *app) newAnnotateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate exome targets with GC content and mappability",
		Long: `Annotate the target BED with GC content from the reference FASTA and mean
mappability, removing targets that overlap gaps or centromeres.`,
		Example: `  vibe-cnv annotate --config run.yaml
  vibe-cnv annotate --target exome.bed --ref hg38.fa --map k100.bedGraph -o annotated.txt`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.load(cmd, map[string]string{
				"target": "target",
				"ref":    "ref",
				"map":    "map",
				"gap":    "gap",
				"centro": "centro",
			}, "target", "ref", "map")
			if err != nil {
				return err
			}
			if output == "" {
				if err := c.Require("main_outdir_host", "exp_id"); err != nil {
					return err
				}
				output = c.AnnotatedTarget()
			}

			ann := annotate.NewAnnotator()
			ann.SetLogger(a.logger)
			regions, err := ann.AnnotateFiles(c.Target, c.Ref, c.Map, c.Gap, c.Centro)
			if err != nil {
				return fmt.Errorf("annotate: %w", err)
			}
			if err := annotate.WriteTable(output, regions); err != nil {
				return err
			}
			a.logger.Info("annotated target written", zap.String("path", output), zap.Int("regions", len(regions)))
			return nil
		},
	}
	cmd.Flags().String("target", "", "Target BED file")
	cmd.Flags().String("ref", "", "Reference FASTA")
	cmd.Flags().String("map", "", "Mappability bedGraph")
	cmd.Flags().String("gap", "", "Gap table")
	cmd.Flags().String("centro", "", "Centromere table")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output table (default <main_outdir_host>/<exp_id>/annotated_target.txt)")
	return cmd
}
