package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datalens-cli/internal/dataset"
	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
	"github.com/KaramelBytes/datalens-cli/internal/report"
)

var (
	dbLoad        loadFlags
	dbFormat      string
	dbMinSeverity string
	dbFailOn      string
	dbDedupe      bool
	dbWorkspace   string
	dbOutput      string
	dbNoCache     bool
	dbJobs        int
	dbWidth       int
	dbQuiet       bool
)

// expandInputs resolves globs and directories into a de-duplicated file list. Order follows
// the arguments; glob matches and directory entries are sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, err
			}
			var names []string
			for _, e := range entries {
				if !e.IsDir() && dataset.Supported(e.Name()) {
					names = append(names, filepath.Join(arg, e.Name()))
				}
			}
			sort.Strings(names)
			for _, n := range names {
				add(n)
			}
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			add(m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	return files, nil
}

// diagnoseAll checks files concurrently. Per-file failures are kept in the result slot so
// one unreadable file does not hide the others.
func diagnoseAll(ctx context.Context, files []string, jobs int, run func(string) (*diagnosis, error)) ([]*diagnosis, []error, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	out := make([]*diagnosis, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			d, err := run(path)
			if err != nil {
				errs[i] = err
				return nil
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, errs, nil
}

var diagnoseBatchCmd = &cobra.Command{
	Use:   "diagnose-batch <files|globs|dirs...>",
	Short: "Check many datasets concurrently and print a combined summary",
	Example: `  datalens diagnose-batch data/*.csv
  datalens diagnose-batch exports/ --jobs 8 --format json
  datalens diagnose-batch a.csv b.xlsx -w audit --fail-on high`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		lo, err := dbLoad.options(cmd)
		if err != nil {
			return err
		}
		ro, err := renderOptions(cmd, dbFormat, dbWidth)
		if err != nil {
			return err
		}
		if dbOutput != "" {
			ro.Color = false
		}
		minSev, failOn, err := parseThresholds(dbMinSeverity, dbFailOn)
		if err != nil {
			return err
		}
		jobs := dbJobs
		if !cmd.Flags().Changed("jobs") && cfg != nil && cfg.Jobs > 0 {
			jobs = cfg.Jobs
		}
		eo := engineOptions(cmd, dbDedupe)
		c := openCache(dbNoCache)

		if !dbQuiet && ro.Format != report.FormatJSON {
			fmt.Fprintf(cmd.ErrOrStderr(), "Checking %d file(s) with %d worker(s)...\n", len(files), min(max(jobs, 1), len(files)))
		}
		ds, errs, err := diagnoseAll(cmd.Context(), files, jobs, func(p string) (*diagnosis, error) {
			return diagnoseFile(p, lo, eo, c)
		})
		if err != nil {
			return err
		}

		results := make([]report.Result, len(files))
		var all []diagnostics.Diagnostic
		var ok []*diagnosis
		for i, p := range files {
			if errs[i] != nil {
				results[i] = report.Result{Name: filepath.Base(p), Err: errs[i]}
				continue
			}
			d := ds[i]
			ok = append(ok, d)
			all = append(all, d.Diagnostics...)
			results[i] = report.Result{Name: d.Name, Diagnostics: diagnostics.Filter(d.Diagnostics, minSev)}
		}

		if dbWorkspace != "" && len(ok) > 0 {
			if err := recordInWorkspace(dbWorkspace, ok...); err != nil {
				return err
			}
		}
		if err := withOutput(cmd, dbOutput, func(w io.Writer) error {
			return report.RenderBatch(w, results, ro)
		}); err != nil {
			return err
		}
		if err := checkFailOn(failOn, all); err != nil {
			return err
		}
		if failed := len(files) - len(ok); failed > 0 {
			return fmt.Errorf("%d of %d file(s) could not be read", failed, len(files))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diagnoseBatchCmd)
	dbLoad.register(diagnoseBatchCmd)
	f := diagnoseBatchCmd.Flags()
	f.StringVarP(&dbFormat, "format", "f", "text", "output format: text|json|markdown (overrides config)")
	f.StringVar(&dbMinSeverity, "min-severity", "", "only show diagnostics at or above this severity: low|medium|high")
	f.StringVar(&dbFailOn, "fail-on", "", "exit with status 2 when a diagnostic at or above this severity is found")
	f.BoolVar(&dbDedupe, "dedupe-missing", false, "drop the 'no valid values' finding for columns already reported absent")
	f.StringVarP(&dbWorkspace, "workspace", "w", "", "record results in this workspace")
	f.StringVarP(&dbOutput, "output", "o", "", "write the combined report to a file instead of stdout")
	f.BoolVar(&dbNoCache, "no-cache", false, "ignore cached results")
	f.IntVarP(&dbJobs, "jobs", "j", 4, "number of files checked concurrently (overrides config)")
	f.IntVar(&dbWidth, "width", 0, "truncate messages to this display width in text output")
	f.BoolVarP(&dbQuiet, "quiet", "q", false, "suppress progress output")
}
