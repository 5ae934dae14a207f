package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-cnv/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vibe-cnv configuration",
		Long:  "Show, get, set or validate configuration values. Config is stored in ~/.vibe-cnv.yaml unless --config is given.",
		Example: `  vibe-cnv config                                # show all config
  vibe-cnv config set exp_id run42               # set a value
  vibe-cnv config set training.noise true        # enable noise augmentation
  vibe-cnv config get calling.confidence.high    # get a value
  vibe-cnv config check                          # validate every section`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigShow()
		},
	}

	cmd.AddCommand(a.newConfigSetCmd())
	cmd.AddCommand(a.newConfigGetCmd())
	cmd.AddCommand(a.newConfigCheckCmd())

	return cmd
}

func (a *app) newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigSet(args[0], args[1])
		},
	}
}

func (a *app) newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigGet(args[0])
		},
	}
}

func (a *app) newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and the files it names",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.load(cmd, nil, "main_outdir_host", "exp_id")
			if err != nil {
				return err
			}
			var present []string
			for key, path := range map[string]string{
				"target": c.Target, "ref": c.Ref, "map": c.Map, "gap": c.Gap, "centro": c.Centro,
				"par": c.PAR, "xlr": c.XLR, "segdup": c.SegDup, "samples": c.Samples, "pool": c.Pool,
			} {
				if path != "" {
					present = append(present, key)
				}
			}
			if err := c.Require(present...); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Configuration OK (%s)\n", c.ExpDir())
			return nil
		},
	}
}

func (a *app) runConfigShow() error {
	settings := a.v.AllSettings()
	if a.v.ConfigFileUsed() == "" {
		fmt.Fprintln(a.out, "# No config file found; showing defaults. Config file: ~/.vibe-cnv.yaml")
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(a.out, string(out))
	return nil
}

func (a *app) runConfigSet(key, value string) error {
	// Parse boolean-like and numeric values
	switch value {
	case "true", "yes", "on":
		a.v.Set(key, true)
	case "false", "no", "off":
		a.v.Set(key, false)
	default:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			a.v.Set(key, n)
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			a.v.Set(key, f)
		} else {
			a.v.Set(key, value)
		}
	}

	c, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	cfgFile := a.v.ConfigFileUsed()
	if cfgFile == "" {
		if cfgFile, err = defaultConfigPath(); err != nil {
			return err
		}
	}

	if err := a.v.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(a.out, "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func (a *app) runConfigGet(key string) error {
	if !a.v.IsSet(key) {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(a.out, a.v.Get(key))
	return nil
}
