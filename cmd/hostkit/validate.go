package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dshills/hostkit/internal/plugin/manifest"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// validation is the outcome for one argument.
type validation struct {
	Path string `json:"path"`
	*manifest.Result
	Error string `json:"error,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <descriptor|package-dir>...",
		Short: "Check plugin descriptors against the schema",
		Long: `Validate plugin descriptor files. A directory argument is taken to be
a script package and its plugin.toml, plugin.yaml, plugin.yml or
plugin.json is checked. Lint warnings, such as versions that are not
semantic versions, are reported but do not fail validation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]validation, 0, len(args))
			failed := false
			for _, arg := range args {
				v := validatePath(arg)
				if v.Error != "" || !v.Valid {
					failed = true
				}
				results = append(results, v)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				printValidations(cmd.OutOrStdout(), results)
			}
			if failed {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func validatePath(path string) validation {
	v := validation{Path: path, Result: &manifest.Result{}}
	file := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		found, err := manifest.Find(path)
		if err != nil {
			v.Error = err.Error()
			return v
		}
		file = found
		v.Path = found
	}
	res, err := manifest.Validate(file)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.Result = res
	return v
}

func printValidations(w io.Writer, results []validation) {
	for _, v := range results {
		switch {
		case v.Error != "":
			fmt.Fprintf(w, "%s %s: %s\n", failStyle.Render("ERROR"), v.Path, v.Error)
		case !v.Valid:
			fmt.Fprintf(w, "%s %s\n", failStyle.Render("INVALID"), v.Path)
			for _, issue := range v.Issues {
				fmt.Fprintf(w, "  - %s\n", issue)
			}
		default:
			fmt.Fprintf(w, "%s %s (%s@%s)\n", okStyle.Render("OK"), v.Path, v.File.ID, v.File.Version)
		}
		for _, warning := range v.Warnings {
			fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("warning:"), warning)
		}
	}
}
