package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
	"github.com/KaramelBytes/datalens-cli/internal/report"
	"github.com/KaramelBytes/datalens-cli/internal/utils"
)

var (
	diagLoad        loadFlags
	diagFormat      string
	diagMinSeverity string
	diagFailOn      string
	diagDedupe      bool
	diagWorkspace   string
	diagOutput      string
	diagNoCache     bool
	diagWidth       int
)

// issuesFoundError is returned when --fail-on matches a diagnostic; Execute maps it to exit code 2.
type issuesFoundError struct {
	threshold diagnostics.Severity
	count     int
}

func (e *issuesFoundError) Error() string {
	return fmt.Sprintf("%d issue(s) at or above %s severity", e.count, e.threshold)
}

func exitCode(err error) int {
	var ife *issuesFoundError
	if errors.As(err, &ife) {
		return 2
	}
	return 1
}

// renderOptions resolves the shared output flags against config.
func renderOptions(cmd *cobra.Command, format string, width int) (report.Options, error) {
	if !cmd.Flags().Changed("format") && cfg != nil && cfg.OutputFormat != "" {
		format = cfg.OutputFormat
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return report.Options{}, err
	}
	useColor := cfg != nil && cfg.Color && !noColor
	return report.Options{Format: f, Color: useColor, MaxMessageWidth: width}, nil
}

func parseThresholds(minSev, failOn string) (diagnostics.Severity, *diagnostics.Severity, error) {
	floor := diagnostics.SeverityLow
	if minSev != "" {
		s, err := diagnostics.ParseSeverity(minSev)
		if err != nil {
			return floor, nil, fmt.Errorf("invalid --min-severity: %w", err)
		}
		floor = s
	}
	if failOn == "" {
		return floor, nil, nil
	}
	s, err := diagnostics.ParseSeverity(failOn)
	if err != nil {
		return floor, nil, fmt.Errorf("invalid --fail-on: %w", err)
	}
	return floor, &s, nil
}

// checkFailOn reports an issuesFoundError when any diagnostic reaches the threshold.
func checkFailOn(fail *diagnostics.Severity, ds []diagnostics.Diagnostic) error {
	if fail == nil {
		return nil
	}
	if n := len(diagnostics.Filter(ds, *fail)); n > 0 {
		return &issuesFoundError{threshold: *fail, count: n}
	}
	return nil
}

// withOutput runs fn against stdout, or against an atomically written file when path is set.
func withOutput(cmd *cobra.Command, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(cmd.OutOrStdout())
	}
	var sb strings.Builder
	if err := fn(&sb); err != nil {
		return err
	}
	if err := utils.SafeWriteFile(path, []byte(sb.String())); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Report written to %s\n", path)
	return nil
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <file>",
	Short: "Check a dataset for missing, invalid, skewed and suspicious columns",
	Example: `  datalens diagnose customers.csv
  datalens diagnose orders.xlsx --sheet Orders --format json
  datalens diagnose events.jsonl --min-severity medium --fail-on high
  datalens diagnose people.csv -w audit --output people.md --format markdown`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("dataset not found: %w", err)
		}
		lo, err := diagLoad.options(cmd)
		if err != nil {
			return err
		}
		ro, err := renderOptions(cmd, diagFormat, diagWidth)
		if err != nil {
			return err
		}
		if diagOutput != "" {
			ro.Color = false
		}
		minSev, failOn, err := parseThresholds(diagMinSeverity, diagFailOn)
		if err != nil {
			return err
		}

		d, err := diagnoseFile(path, lo, engineOptions(cmd, diagDedupe), openCache(diagNoCache))
		if err != nil {
			return err
		}
		if diagWorkspace != "" {
			if err := recordInWorkspace(diagWorkspace, d); err != nil {
				return err
			}
		}
		shown := diagnostics.Filter(d.Diagnostics, minSev)
		if err := withOutput(cmd, diagOutput, func(w io.Writer) error {
			return report.Render(w, d.Name, shown, ro)
		}); err != nil {
			return err
		}
		if diagWorkspace != "" && ro.Format != report.FormatJSON {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Recorded in workspace %s\n", diagWorkspace)
		}
		return checkFailOn(failOn, d.Diagnostics)
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	diagLoad.register(diagnoseCmd)
	f := diagnoseCmd.Flags()
	f.StringVarP(&diagFormat, "format", "f", "text", "output format: text|json|markdown (overrides config)")
	f.StringVar(&diagMinSeverity, "min-severity", "", "only show diagnostics at or above this severity: low|medium|high")
	f.StringVar(&diagFailOn, "fail-on", "", "exit with status 2 when a diagnostic at or above this severity is found")
	f.BoolVar(&diagDedupe, "dedupe-missing", false, "drop the 'no valid values' finding for columns already reported absent")
	f.StringVarP(&diagWorkspace, "workspace", "w", "", "record the result in this workspace")
	f.StringVarP(&diagOutput, "output", "o", "", "write the report to a file instead of stdout")
	f.BoolVar(&diagNoCache, "no-cache", false, "ignore cached results")
	f.IntVar(&diagWidth, "width", 0, "truncate messages to this display width in text output")
}
