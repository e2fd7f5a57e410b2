package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens-cli/internal/analysis"
	"github.com/KaramelBytes/datalens-cli/internal/dataset"
)

var (
	profLoad       loadFlags
	profSampleRows int
	profTopValues  int
	profDedupe     bool
	profOutput     string
)

// profileFile loads a dataset and builds its profile report, warning about truncation.
func profileFile(cmd *cobra.Command, path string, lf *loadFlags, sampleRows, topValues int, dedupe bool) (*analysis.Report, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset not found: %w", err)
	}
	lo, err := lf.options(cmd)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Load(path, lo)
	if err != nil {
		return nil, err
	}
	opt := analysis.DefaultOptions()
	if sampleRows > 0 {
		opt.SampleRows = sampleRows
	}
	if topValues > 0 {
		opt.TopValues = topValues
	}
	opt.Engine = engineOptions(cmd, dedupe)
	rep := analysis.Profile(ds, opt)
	for _, w := range rep.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s\n", w)
	}
	return rep, nil
}

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Summarize a dataset's schema, sample rows and data quality as Markdown",
	Example: `  datalens profile sales.csv
  datalens profile book.xlsx --sheet Q3 --sample-rows 10 -o q3.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := profileFile(cmd, args[0], &profLoad, profSampleRows, profTopValues, profDedupe)
		if err != nil {
			return err
		}
		return withOutput(cmd, profOutput, func(w io.Writer) error {
			_, err := io.WriteString(w, rep.Markdown())
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profLoad.register(profileCmd)
	f := profileCmd.Flags()
	f.IntVar(&profSampleRows, "sample-rows", 5, "number of sample rows to include")
	f.IntVar(&profTopValues, "top", 8, "number of top values listed for categorical columns")
	f.BoolVar(&profDedupe, "dedupe-missing", false, "drop the 'no valid values' finding for columns already reported absent")
	f.StringVarP(&profOutput, "output", "o", "", "write the profile to a file instead of stdout")
}
