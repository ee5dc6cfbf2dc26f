package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/hostkit/internal/config"
)

func newConfigCommand(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after applying the config file, HOSTKIT_*
environment variables and command-line flags. Recognized variables:
` + envHelp(),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return cfg.Encode(cmd.OutOrStdout(), config.Format(format))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(config.FormatTOML), "Output format (toml, yaml or json)")
	return cmd
}

func envHelp() string {
	var s string
	for _, name := range config.EnvNames() {
		s += "  " + name + "\n"
	}
	return s
}
