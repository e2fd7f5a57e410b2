package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens-cli/internal/assistant"
)

// assistFlags are shared by ask and chat.
type assistFlags struct {
	load          loadFlags
	provider      string
	model         string
	maxTokens     int
	temperature   float64
	contextTokens int
	ollamaHost    string
	baseURL       string
	stream        bool
	timeoutSec    int
	dedupe        bool
}

func (af *assistFlags) register(cmd *cobra.Command) {
	af.load.register(cmd)
	f := cmd.Flags()
	f.StringVar(&af.provider, "provider", "", "AI provider: openrouter|anthropic|ollama (overrides config)")
	f.StringVarP(&af.model, "model", "m", "", "model name (overrides config)")
	f.IntVar(&af.maxTokens, "max-tokens", 0, "maximum answer tokens (overrides config)")
	f.Float64Var(&af.temperature, "temperature", 0, "sampling temperature (overrides config)")
	f.IntVar(&af.contextTokens, "context-tokens", 0, "token budget for the dataset profile sent as context (overrides config)")
	f.StringVar(&af.ollamaHost, "ollama-host", "", "Ollama host, e.g. http://127.0.0.1:11434 (overrides config)")
	f.StringVar(&af.baseURL, "base-url", "", "override the provider API endpoint")
	f.BoolVar(&af.stream, "stream", false, "print the answer as it is generated")
	f.IntVar(&af.timeoutSec, "timeout-sec", 180, "timeout for each answer in seconds")
	f.BoolVar(&af.dedupe, "dedupe-missing", false, "drop the 'no valid values' finding for columns already reported absent")
	_ = f.MarkHidden("base-url")
}

// session is a ready-to-use conversation plus the settings it was built with.
type session struct {
	conv     *assistant.Conversation
	provider string
	model    string
	stream   bool
	timeout  time.Duration
}

func (af *assistFlags) open(cmd *cobra.Command, path string) (*session, error) {
	rep, err := profileFile(cmd, path, &af.load, 0, 0, af.dedupe)
	if err != nil {
		return nil, err
	}
	rt, providerName, err := buildRuntime(cfg, runtimeOptions{
		ProviderFlag: af.provider,
		OllamaHost:   af.ollamaHost,
		BaseURL:      af.baseURL,
	})
	if err != nil {
		return nil, err
	}

	opt := assistant.Options{Model: af.model, MaxTokens: af.maxTokens, Temperature: af.temperature, ContextTokens: af.contextTokens}
	if cfg != nil {
		if opt.Model == "" {
			opt.Model = cfg.Model
		}
		if opt.MaxTokens == 0 {
			opt.MaxTokens = cfg.MaxTokens
		}
		if !cmd.Flags().Changed("temperature") {
			opt.Temperature = cfg.Temperature
		}
		if opt.ContextTokens == 0 {
			opt.ContextTokens = cfg.ContextTokens
		}
	}
	if opt.Model == "" {
		opt.Model = "openai/gpt-4o-mini"
	}
	if opt.MaxTokens == 0 {
		opt.MaxTokens = 1024
	}
	timeout := time.Duration(af.timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &session{
		conv:     assistant.New(rt, rep, opt),
		provider: providerName,
		model:    opt.Model,
		stream:   af.stream,
		timeout:  timeout,
	}, nil
}

// ask sends one question and writes the answer to w.
func (s *session) ask(ctx context.Context, w io.Writer, question string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.stream {
		_, err := s.conv.AskStream(ctx, question, func(d string) { fmt.Fprint(w, d) })
		if err != nil {
			if errors.Is(err, assistant.ErrEmptyQuestion) {
				return err
			}
			return explainAIError(err, s.provider, s.model)
		}
		fmt.Fprintln(w)
		return nil
	}
	m, err := s.conv.Ask(ctx, question)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyQuestion) {
			return err
		}
		return explainAIError(err, s.provider, s.model)
	}
	fmt.Fprintln(w, m.Content)
	return nil
}

var askFlags assistFlags

var askCmd = &cobra.Command{
	Use:   "ask <file> <question...>",
	Short: "Ask the AI assistant a question about a dataset",
	Example: `  datalens ask customers.csv "Which columns need cleaning first?"
  datalens ask orders.xlsx --provider anthropic -m claude-3-5-haiku-latest "Is the total column reliable?"
  datalens ask events.jsonl --provider ollama -m llama3 --stream "Summarize the problems"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args[1:], " "))
		if question == "" {
			return assistant.ErrEmptyQuestion
		}
		s, err := askFlags.open(cmd, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "⚙ Asking %s via %s (context≈%d tokens) ...\n", s.model, s.provider, s.conv.ContextTokens())
		return s.ask(cmd.Context(), cmd.OutOrStdout(), question)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askFlags.register(askCmd)
}
