package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/hostkit/internal/config"
	"github.com/dshills/hostkit/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	pluginsDir string
}

func newRootCommand() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "hostkit",
		Short: "Plugin host with an event bus and a service registry",
		Long: `hostkit discovers plugin packages in a directory, loads them in
dependency order and connects them through a typed event bus and a
priority-ranked service registry.

Plugins are either Lua scripts (a directory with plugin.toml and init.lua)
or native factories compiled into the binary and selected by a
<name>.plugin.toml descriptor.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\ncommit: %s\nbuilt: %s\n", commit, date))

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file (toml, yaml or json)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format (json or console)")
	pf.StringVarP(&flags.pluginsDir, "plugins", "p", "", "Plugin directory (overrides config)")

	root.AddCommand(
		newRunCommand(&flags),
		newListCommand(&flags),
		newValidateCommand(),
		newConfigCommand(&flags),
		newVersionCommand(),
	)
	return root
}

// loadConfig resolves defaults, the config file, HOSTKIT_* variables and
// flags, in that order.
func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = logging.Format(flags.logFormat)
	}
	if flags.pluginsDir != "" {
		cfg.Plugins.Dir = flags.pluginsDir
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays machine-readable.
func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	return logging.New(cfg.Log, w)
}
