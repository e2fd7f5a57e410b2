// Package report renders diagnostics for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

// Format selects an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts text, json or markdown (md).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or markdown)", s)
}

// Options controls rendering.
type Options struct {
	Format Format
	// Color enables ANSI colors for severities in text output.
	Color bool
	// MaxMessageWidth truncates messages in text output; 0 keeps them whole.
	MaxMessageWidth int
}

// NoIssues is printed for an empty result in text and markdown output.
const NoIssues = "no data quality issues found"

// Render writes the diagnostics for one dataset.
func Render(w io.Writer, name string, ds []diagnostics.Diagnostic, opt Options) error {
	switch opt.Format {
	case FormatJSON:
		return renderJSON(w, name, ds)
	case FormatMarkdown:
		return renderMarkdown(w, name, ds)
	case FormatText, "":
		return renderText(w, name, ds, opt)
	}
	return fmt.Errorf("unknown output format %q", opt.Format)
}

type jsonSummary struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"byType"`
	BySeverity map[string]int `json:"bySeverity"`
}

type jsonDoc struct {
	Dataset     string                   `json:"dataset"`
	Count       int                      `json:"count"`
	Summary     jsonSummary              `json:"summary"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

// Document builds the JSON document shape used by the json format.
func Document(name string, ds []diagnostics.Diagnostic) any {
	if ds == nil {
		ds = []diagnostics.Diagnostic{}
	}
	return jsonDoc{Dataset: name, Count: len(ds), Summary: newJSONSummary(ds), Diagnostics: ds}
}

func newJSONSummary(ds []diagnostics.Diagnostic) jsonSummary {
	s := diagnostics.Summarize(ds)
	js := jsonSummary{Total: s.Total, ByType: map[string]int{}, BySeverity: map[string]int{}}
	for t, n := range s.ByType {
		js.ByType[string(t)] = n
	}
	for sev, n := range s.BySeverity {
		js.BySeverity[sev.String()] = n
	}
	return js
}

func renderJSON(w io.Writer, name string, ds []diagnostics.Diagnostic) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document(name, ds))
}

func summaryLine(ds []diagnostics.Diagnostic) string {
	s := diagnostics.Summarize(ds)
	return fmt.Sprintf("%d issues (high %d, medium %d, low %d)", s.Total,
		s.BySeverity[diagnostics.SeverityHigh], s.BySeverity[diagnostics.SeverityMedium], s.BySeverity[diagnostics.SeverityLow])
}

func severityColor(s diagnostics.Severity, enabled bool) *color.Color {
	var c *color.Color
	switch s {
	case diagnostics.SeverityHigh:
		c = color.New(color.FgRed, color.Bold)
	case diagnostics.SeverityMedium:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgHiBlack)
	}
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func renderText(w io.Writer, name string, ds []diagnostics.Diagnostic, opt Options) error {
	title := color.New(color.FgCyan, color.Bold)
	if opt.Color {
		title.EnableColor()
	} else {
		title.DisableColor()
	}
	if len(ds) == 0 {
		_, err := fmt.Fprintf(w, "%s: %s\n", title.Sprint(name), NoIssues)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s: %s\n", title.Sprint(name), summaryLine(ds)); err != nil {
		return err
	}

	headers := []string{"TYPE", "COLUMN", "SEVERITY", "MESSAGE"}
	widths := make([]int, 3)
	for i := range widths {
		widths[i] = runewidth.StringWidth(headers[i])
	}
	for _, d := range ds {
		widths[0] = max(widths[0], runewidth.StringWidth(string(d.Type)))
		widths[1] = max(widths[1], runewidth.StringWidth(d.Column))
		widths[2] = max(widths[2], runewidth.StringWidth(d.Severity.String()))
	}

	var b strings.Builder
	b.WriteString(pad(headers[0], widths[0]) + "  " + pad(headers[1], widths[1]) + "  " + pad(headers[2], widths[2]) + "  " + headers[3] + "\n")
	for _, d := range ds {
		msg := d.Message
		if opt.MaxMessageWidth > 0 {
			msg = runewidth.Truncate(msg, opt.MaxMessageWidth, "...")
		}
		if d.Details != nil && len(d.Details.Types) > 0 {
			msg += " [" + strings.Join(d.Details.Types, ", ") + "]"
		}
		sev := severityColor(d.Severity, opt.Color).Sprint(pad(d.Severity.String(), widths[2]))
		b.WriteString(pad(string(d.Type), widths[0]) + "  " + pad(d.Column, widths[1]) + "  " + sev + "  " + msg + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// pad right-fills s to a display width.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func renderMarkdown(w io.Writer, name string, ds []diagnostics.Diagnostic) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("## Data quality: %s\n\n", name))
	if len(ds) == 0 {
		b.WriteString("_" + NoIssues + "_\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	b.WriteString(summaryLine(ds) + "\n\n")
	b.WriteString("| Type | Column | Severity | Message |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, d := range ds {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", d.Type, mdCell(d.Column), d.Severity, mdCell(d.Message)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func mdCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
