package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens-cli/internal/utils"
)

var chatFlags assistFlags

// errChatExit ends the chat loop.
var errChatExit = errors.New("exit")

// chatREPL runs an interactive conversation about one dataset.
type chatREPL struct {
	s   *session
	out io.Writer
}

// handle processes one line of input. Lines starting with '/' are commands.
func (r *chatREPL) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.s.ask(ctx, r.out, line)
	}
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/exit", "/quit":
		return errChatExit
	case "/help", "/?":
		r.printHelp()
	case "/reset":
		r.s.conv.Reset()
		fmt.Fprintln(r.out, "✓ Conversation cleared")
	case "/context":
		var history strings.Builder
		for _, m := range r.s.conv.Messages {
			history.WriteString(m.Content)
			history.WriteByte('\n')
		}
		tokens := utils.TokenBreakdown(map[string]string{"profile": r.s.conv.Context(), "history": history.String()})
		fmt.Fprintln(r.out, r.s.conv.Context())
		fmt.Fprintf(r.out, "\n≈%d profile tokens, %d history tokens\n", tokens["profile"], tokens["history"])
	case "/usage":
		u := r.s.conv.Usage()
		fmt.Fprintf(r.out, "Tokens: prompt %d, completion %d, total %d (%d messages)\n",
			u.PromptTokens, u.CompletionTokens, u.TotalTokens, len(r.s.conv.Messages))
	default:
		return fmt.Errorf("unknown command %s (try /help)", line)
	}
	return nil
}

func (r *chatREPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("DataLens assistant: "+r.s.conv.Dataset))
	fmt.Fprintf(r.out, "Model %s via %s, context≈%d tokens\n", r.s.model, r.s.provider, r.s.conv.ContextTokens())
	fmt.Fprintln(r.out, "Ask a question about the dataset, or type /help")
	fmt.Fprintln(r.out)
}

func (r *chatREPL) printHelp() {
	green := color.New(color.FgGreen).SprintFunc()
	for _, c := range []struct{ name, desc string }{
		{"/help", "Show this help message"},
		{"/context", "Print the dataset profile sent to the model"},
		{"/usage", "Show token usage so far"},
		{"/reset", "Forget the conversation history"},
		{"/exit", "Leave the chat"},
	} {
		fmt.Fprintf(r.out, "  %s  %s\n", green(fmt.Sprintf("%-9s", c.name)), c.desc)
	}
}

// run reads lines until EOF or /exit.
func (r *chatREPL) run(ctx context.Context) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("datalens> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.printWelcome()
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				// Ctrl+C - just show prompt again
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}
		if err := r.handle(ctx, line); err != nil {
			if errors.Is(err, errChatExit) {
				fmt.Fprintln(r.out, "Goodbye!")
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

var chatCmd = &cobra.Command{
	Use:   "chat <file>",
	Short: "Start an interactive conversation about a dataset",
	Example: `  datalens chat customers.csv
  datalens chat orders.xlsx --sheet Orders --provider ollama -m llama3 --stream`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := chatFlags.open(cmd, args[0])
		if err != nil {
			return err
		}
		r := &chatREPL{s: s, out: cmd.OutOrStdout()}
		return r.run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatFlags.register(chatCmd)
}
