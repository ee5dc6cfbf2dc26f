package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/hostkit/internal/config"
	"github.com/dshills/hostkit/internal/host"
	"github.com/dshills/hostkit/internal/plugin"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	skipStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("196"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// listing is the machine-readable output of list.
type listing struct {
	Plugins []listedPlugin `json:"plugins"`
	Skipped []listedSkip   `json:"skipped"`
}

type listedPlugin struct {
	ID           string   `json:"id"`
	Version      string   `json:"version"`
	Loader       string   `json:"loader"`
	Dependencies []string `json:"dependencies"`
	Path         string   `json:"path"`
}

type listedSkip struct {
	ID     string `json:"id,omitempty"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

func newListCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Load the plugin directory and show what loaded",
		Long: `Run one load cycle over the plugin directory, print the loaded
plugins in load order followed by every skipped candidate, then shut
the plugins down again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cfg.Plugins.Watch = false
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			l, err := collect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(l)
			}
			printListing(cmd.OutOrStdout(), l)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// collect loads the configured directory and captures the result before
// shutting down.
func collect(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*listing, error) {
	rt, err := host.New(cfg, host.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	report, startErr := rt.Start(ctx)
	if startErr != nil && !errors.Is(startErr, plugin.ErrCycleDetected) {
		return nil, errors.Join(startErr, rt.Shutdown(ctx, "list"))
	}

	l := &listing{Plugins: []listedPlugin{}, Skipped: []listedSkip{}}
	for _, c := range rt.Manager().AllPlugins() {
		d := c.Descriptor()
		deps := make([]string, 0, len(d.Dependencies))
		for _, dep := range d.Dependencies {
			deps = append(deps, dep.String())
		}
		l.Plugins = append(l.Plugins, listedPlugin{
			ID:           d.ID,
			Version:      d.Version,
			Loader:       d.LoaderName(),
			Dependencies: deps,
			Path:         d.Path,
		})
	}
	if report != nil {
		for _, s := range report.Skipped {
			l.Skipped = append(l.Skipped, listedSkip{ID: s.ID, Path: s.Path, Reason: s.Reason, Error: s.Message()})
		}
	}
	return l, rt.Shutdown(ctx, "list")
}

func printListing(w io.Writer, l *listing) {
	if len(l.Plugins) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No plugins loaded."))
	} else {
		rows := make([][]string, 0, len(l.Plugins))
		for _, p := range l.Plugins {
			deps := "-"
			if len(p.Dependencies) > 0 {
				deps = strings.Join(p.Dependencies, ", ")
			}
			rows = append(rows, []string{p.ID, p.Version, p.Loader, deps})
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(mutedStyle).
			Headers("ID", "VERSION", "LOADER", "DEPENDENCIES").
			Rows(rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Loaded (%d)", len(l.Plugins))))
		fmt.Fprintln(w, t.Render())
	}

	if len(l.Skipped) == 0 {
		return
	}
	rows := make([][]string, 0, len(l.Skipped))
	for _, s := range l.Skipped {
		id := s.ID
		if id == "" {
			id = "-"
		}
		rows = append(rows, []string{id, s.Reason, s.Error})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "REASON", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return skipStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Skipped (%d)", len(l.Skipped))))
	fmt.Fprintln(w, t.Render())
}
