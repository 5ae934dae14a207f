// Package main provides the vibe-cnv command-line tool.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-cnv/internal/config"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

// usageError marks command-line mistakes, reported with ExitUsage.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// app carries the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	logger  *zap.Logger
	out     io.Writer
	// newLogger builds the logger once flags are parsed.
	newLogger func(verbose bool) (*zap.Logger, error)
}

func newApp(out io.Writer) *app {
	return &app{
		v:      viper.New(),
		logger: zap.NewNop(),
		out:    out,
		newLogger: func(verbose bool) (*zap.Logger, error) {
			if verbose {
				return zap.NewDevelopment()
			}
			return zap.NewProduction()
		},
	}
}

func execute(args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout)
	return a.execute(args, stderr)
}

func (a *app) execute(args []string, stderr io.Writer) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(stderr)

	err := root.Execute()
	_ = a.logger.Sync()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var ue *usageError
	var ce *config.ValidationError
	if errors.As(err, &ue) || errors.As(err, &ce) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintf(stderr, "Run 'vibe-cnv --help' for usage.\n")
		return ExitUsage
	}
	return ExitError
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vibe-cnv",
		Short: "Copy-number variant calling on chromosome X",
		Long: `vibe-cnv annotates exome targets, normalizes samples against a pool,
builds chrX training tables, trains multi-class copy-number models, calls
samples in parallel and writes VCF files.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Config file (default ~/.vibe-cnv.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Human-readable debug logging")

	root.AddCommand(
		a.newCheckCmd(),
		a.newAnnotateCmd(),
		a.newDatasetsCmd(),
		a.newTrainCmd(),
		a.newCallCmd(),
		a.newVCFCmd(),
		a.newOutliersCmd(),
		a.newConfigCmd(),
	)
	return root
}

// init reads the config file and environment and builds the logger.
func (a *app) init() error {
	a.v.SetEnvPrefix("VIBECNV")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".vibe-cnv")
		a.v.SetConfigType("yaml")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &nf) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	logger, err := a.newLogger(a.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger
	if f := a.v.ConfigFileUsed(); f != "" {
		a.logger.Debug("using config file", zap.String("path", f))
	}
	return nil
}

// bind maps changed command flags onto configuration keys, so that flags
// override the config file only for the running command.
func (a *app) bind(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("no flag %q", flag)
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// load binds flags and decodes and validates the configuration, checking
// that the named keys are set.
func (a *app) load(cmd *cobra.Command, flags map[string]string, required ...string) (*config.Config, error) {
	if err := a.bind(cmd, flags); err != nil {
		return nil, err
	}
	c, err := config.Load(a.v)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.Require(required...); err != nil {
		return nil, err
	}
	return c, nil
}

// usageArgs marks argument-count errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// defaultConfigPath is where config set writes when no file is in use.
func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".vibe-cnv.yaml"), nil
}
