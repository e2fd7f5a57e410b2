package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens-cli/internal/ai"
	"github.com/KaramelBytes/datalens-cli/internal/cache"
	cfgpkg "github.com/KaramelBytes/datalens-cli/internal/config"
	"github.com/KaramelBytes/datalens-cli/internal/dataset"
	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
	"github.com/KaramelBytes/datalens-cli/internal/utils"
	"github.com/KaramelBytes/datalens-cli/internal/workspace"
)

// loadFlags are shared by every command that reads a dataset.
type loadFlags struct {
	delimiter  string
	sheetName  string
	sheetIndex int
	maxRows    int
	inferTypes bool
	columns    []string
}

func (lf *loadFlags) options(cmd *cobra.Command) (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	if cfg != nil {
		if cfg.MaxRows > 0 {
			opt.MaxRows = cfg.MaxRows
		}
		opt.InferTypes = cfg.InferTypes
	}
	f := cmd.Flags()
	if f.Changed("max-rows") {
		opt.MaxRows = lf.maxRows
	}
	if f.Changed("infer-types") {
		opt.InferTypes = lf.inferTypes
	}
	if lf.sheetName != "" {
		opt.SheetName = lf.sheetName
	}
	if lf.sheetIndex > 0 {
		opt.SheetIndex = lf.sheetIndex
	}
	opt.Columns = lf.columns
	switch strings.ToLower(lf.delimiter) {
	case "":
	case ",", "comma":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";", "semicolon":
		opt.Delimiter = ';'
	case "|", "pipe":
		opt.Delimiter = '|'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", lf.delimiter)
	}
	return opt, nil
}

func (lf *loadFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&lf.delimiter, "delimiter", "", "CSV delimiter: ',', ';', tab or pipe (default from extension)")
	f.StringVar(&lf.sheetName, "sheet", "", "XLSX sheet name")
	f.IntVar(&lf.sheetIndex, "sheet-index", 0, "XLSX sheet index, 1-based")
	f.IntVar(&lf.maxRows, "max-rows", 0, "maximum rows to analyze, 0 for unlimited (overrides config)")
	f.BoolVar(&lf.inferTypes, "infer-types", false, "treat numeric and boolean CSV cells as typed values (overrides config)")
	f.StringSliceVar(&lf.columns, "columns", nil, "declared columns for JSON inputs (default: keys in order of appearance)")
}

func engineOptions(cmd *cobra.Command, dedupe bool) diagnostics.Options {
	opt := diagnostics.Options{}
	if cfg != nil {
		opt.SuppressRedundantMissing = cfg.DedupeMissing
	}
	if cmd.Flags().Changed("dedupe-missing") {
		opt.SuppressRedundantMissing = dedupe
	}
	return opt
}

// openCache returns nil when caching is disabled; a nil cache is a valid no-op.
func openCache(disabled bool) *cache.Cache {
	if disabled || cfg == nil || !cfg.CacheEnabled {
		return nil
	}
	c, err := cache.Open(expandHome(cfg.CacheDir))
	if err != nil {
		slog.Debug("cache disabled", "err", err)
		return nil
	}
	return c
}

// diagnosis is the outcome of checking one file.
type diagnosis struct {
	Path        string
	Name        string
	Format      string
	Columns     []string
	Rows        int
	Diagnostics []diagnostics.Diagnostic
	Cached      bool
}

func (d *diagnosis) dataset() *dataset.Dataset {
	return &dataset.Dataset{Name: d.Name, Source: d.Path, Format: d.Format, Columns: d.Columns, TotalRows: d.Rows}
}

func cacheKey(path string, lo dataset.Options, eo diagnostics.Options) (string, error) {
	digest, err := utils.FileDigest(path)
	if err != nil {
		return "", err
	}
	return cache.Key(
		digest,
		[]byte(fmt.Sprintf("%q|%v|%d|%q|%d|%q", lo.Delimiter, lo.InferTypes, lo.MaxRows, lo.SheetName, lo.SheetIndex, lo.Columns)),
		[]byte(fmt.Sprintf("%v", eo.SuppressRedundantMissing)),
		[]byte(filepath.Base(path)),
	), nil
}

// diagnoseFile loads and checks one dataset, consulting the cache first.
func diagnoseFile(path string, lo dataset.Options, eo diagnostics.Options, c *cache.Cache) (*diagnosis, error) {
	var key string
	if c != nil {
		k, err := cacheKey(path, lo, eo)
		if err != nil {
			return nil, err
		}
		key = k
		if e, ok, err := c.Get(key); err != nil {
			slog.Debug("cache read failed", "path", path, "err", err)
		} else if ok {
			slog.Debug("cache hit", "path", path)
			return &diagnosis{Path: path, Name: e.Dataset, Format: e.Format, Columns: e.Columns, Rows: e.Rows, Diagnostics: e.Diagnostics, Cached: true}, nil
		}
	}

	ds, err := dataset.Load(path, lo)
	if err != nil {
		return nil, err
	}
	diags := diagnostics.AnalyzeWithOptions(ds.Rows, ds.Columns, eo)
	out := &diagnosis{Path: path, Name: ds.Name, Format: ds.Format, Columns: ds.Columns, Rows: ds.TotalRows, Diagnostics: diags}
	if ds.Truncated {
		slog.Warn("dataset truncated", "path", path, "kept", len(ds.Rows), "total", ds.TotalRows)
	}
	if c != nil {
		err := c.Put(key, cache.Entry{
			Dataset:     out.Name,
			Format:      out.Format,
			Columns:     out.Columns,
			Rows:        out.Rows,
			Diagnostics: diags,
			CreatedAt:   time.Now(),
		})
		if err != nil {
			slog.Debug("cache write failed", "path", path, "err", err)
		}
	}
	return out, nil
}

func expandHome(dir string) string {
	if !strings.HasPrefix(dir, "~") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	dir = strings.TrimPrefix(dir, "~")
	dir = strings.TrimPrefix(dir, string(os.PathSeparator))
	dir = strings.TrimPrefix(dir, "/")
	return filepath.Join(home, dir)
}

func defaultWorkspacesDir() (string, error) {
	dir := ""
	if cfg != nil {
		dir = cfg.WorkspacesDir
	}
	if dir == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "workspaces")
	}
	dir = filepath.Clean(expandHome(dir))
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// resolveWorkspaceDirByName maps a name to its directory. "." selects the workspace
// enclosing the current directory.
func resolveWorkspaceDirByName(name string) (string, error) {
	if name == "" {
		return "", errors.New("workspace name is required")
	}
	if name == "." {
		return utils.FindWorkspaceRoot("")
	}
	root, err := defaultWorkspacesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

func loadWorkspace(name string) (*workspace.Workspace, error) {
	dir, err := resolveWorkspaceDirByName(name)
	if err != nil {
		return nil, err
	}
	w, err := workspace.Load(dir)
	if errors.Is(err, workspace.ErrNotFound) {
		return nil, fmt.Errorf("%w (create it with 'datalens init %s')", err, name)
	}
	return w, err
}

// recordInWorkspace stores the diagnosis summaries in the named workspace.
func recordInWorkspace(name string, ds ...*diagnosis) error {
	w, err := loadWorkspace(name)
	if err != nil {
		return err
	}
	for _, d := range ds {
		w.AddDataset(d.dataset(), d.Diagnostics)
	}
	return w.Save()
}

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
	BaseURL      string
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := strings.ToLower(strings.TrimSpace(opts.ProviderFlag))
	if providerName == "" && cfg != nil && cfg.Provider != "" {
		providerName = strings.ToLower(cfg.Provider)
	}
	if providerName == "" {
		providerName = ai.ProviderOpenRouter
	}
	switch providerName {
	case "local":
		providerName = ai.ProviderOllama
	case "claude":
		providerName = ai.ProviderAnthropic
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		BaseURL:     opts.BaseURL,
	}
	if cfg != nil {
		rc.APIKey = cfg.APIKey
		rc.AnthropicAPIKey = cfg.AnthropicAPIKey
	}
	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		rc.Host = host
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s (use %s)", providerName, strings.Join(ai.Providers(), "|"))
	}
	return client, providerName, nil
}

// explainAIError adds a hint for common runtime failures.
func explainAIError(err error, providerName, model string) error {
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("request timed out; raise --http-timeout or --timeout-sec: %w", err)
	case errors.Is(err, ai.ErrMissingAPIKey):
		return err
	case errors.As(err, &unreach):
		if providerName == ai.ProviderOllama {
			return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct (config 'ollama_host' or DATALENS_OLLAMA_HOST): %w", unreach.Host, err)
		}
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &authErr):
		if providerName == ai.ProviderAnthropic {
			return fmt.Errorf("authentication failed: set ANTHROPIC_API_KEY or anthropic_api_key in config: %w", err)
		}
		return fmt.Errorf("authentication failed: set OPENROUTER_API_KEY or api_key in config (~/.datalens/config.yaml): %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		if providerName == ai.ProviderOllama {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
		}
		return fmt.Errorf("model not found (%s). Verify the model name: %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request invalid. Try lowering context_tokens or max_tokens: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	}
	return fmt.Errorf("generation failed: %w", err)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
