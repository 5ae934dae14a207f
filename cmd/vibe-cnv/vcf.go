package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-cnv/internal/vcf"
)

func (a *app) newVCFCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vcf",
		Short: "Write per-sample VCF files from window calls",
		Long: `Convert the window table of every sample subdirectory of the window
directory into <out-dir>/<sample dir>/<sample>.vcf. With --hc-only the
high-confidence (PASS) window file of each sample is used.`,
		Example: `  vibe-cnv vcf --window-dir windows/ --out-dir VCF/
  vibe-cnv vcf --config run.yaml --hc-only --reference GRCh38`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.load(cmd, map[string]string{
				"window-dir": "vcf.window_dir",
				"out-dir":    "vcf.out_dir",
				"hc-only":    "vcf.hc_only",
				"reference":  "vcf.reference",
			}, "vcf.window_dir")
			if err != nil {
				return err
			}
			if c.VCF.OutDir == "" {
				if err := c.Require("main_outdir_host", "exp_id"); err != nil {
					return err
				}
			}

			e := vcf.NewEmitter(c.Calling.Tiers, c.VCF.Reference)
			e.HCOnly = c.VCF.HCOnly
			e.SetLogger(a.logger)
			written, err := e.EmitDir(c.VCF.WindowDir, c.VCFOutDir())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d VCF file(s) written to %s\n", len(written), c.VCFOutDir())
			return nil
		},
	}
	cmd.Flags().String("window-dir", "", "Directory of per-sample window subdirectories")
	cmd.Flags().String("out-dir", "", "Output directory (default <main_outdir_host>/<exp_id>/VCF)")
	cmd.Flags().Bool("hc-only", false, "Use the high-confidence window file of each sample")
	cmd.Flags().String("reference", "unspecified", "Reference label for ##reference")
	return cmd
}
