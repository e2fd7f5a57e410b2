package analysis

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

// maxCellWidth is the display width a sample cell is truncated to.
const maxCellWidth = 80

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.Format != "" {
		b.WriteString(fmt.Sprintf("Format: %s\n", r.Format))
	}
	if r.Processed > 0 && r.Processed < r.Rows {
		b.WriteString(fmt.Sprintf("Rows: ~%d (processed %d)\n", r.Rows, r.Processed))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %s%%)", safeName(c.Name), c.Kind, c.NonNull, diagnostics.FormatPercent(missPct)))
		switch c.Kind {
		case "numeric":
			b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
		case "categorical":
			b.WriteString("; top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
			b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
		case "text":
			if len(c.ExampleTexts) > 0 {
				b.WriteString("; e.g., ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(runewidth.Truncate(ex, 40, "...")))
				}
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\n[DATA QUALITY]\n")
	if len(r.Diagnostics) == 0 {
		b.WriteString("No data quality issues found.\n")
	} else {
		s := diagnostics.Summarize(r.Diagnostics)
		b.WriteString(fmt.Sprintf("Issues: %d (high %d, medium %d, low %d)\n", s.Total,
			s.BySeverity[diagnostics.SeverityHigh], s.BySeverity[diagnostics.SeverityMedium], s.BySeverity[diagnostics.SeverityLow]))
		for _, d := range r.Diagnostics {
			b.WriteString(fmt.Sprintf("- [%s] %s: %s", d.Severity, d.Type, d.Message))
			if d.Details != nil && len(d.Details.Types) > 0 {
				b.WriteString(fmt.Sprintf(" (types: %s)", strings.Join(d.Details.Types, ", ")))
			}
			b.WriteString("\n")
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				b.WriteString(safeVal(runewidth.Truncate(val, maxCellWidth, "...")))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
