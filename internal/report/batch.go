package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

// Result is one dataset's outcome in a batch run. Err is set when the dataset could not be read.
type Result struct {
	Name        string
	Diagnostics []diagnostics.Diagnostic
	Err         error
}

type batchError struct {
	Dataset string `json:"dataset"`
	Error   string `json:"error"`
}

type batchDoc struct {
	Datasets []any       `json:"datasets"`
	Failed   int         `json:"failed"`
	Summary  jsonSummary `json:"summary"`
}

// RenderBatch writes every result in order followed by a combined summary.
func RenderBatch(w io.Writer, results []Result, opt Options) error {
	var all []diagnostics.Diagnostic
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		all = append(all, r.Diagnostics...)
	}

	if opt.Format == FormatJSON {
		doc := batchDoc{Datasets: make([]any, 0, len(results)), Failed: failed, Summary: newJSONSummary(all)}
		for _, r := range results {
			if r.Err != nil {
				doc.Datasets = append(doc.Datasets, batchError{Dataset: r.Name, Error: r.Err.Error()})
				continue
			}
			doc.Datasets = append(doc.Datasets, Document(r.Name, r.Diagnostics))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if r.Err != nil {
			if opt.Format == FormatMarkdown {
				fmt.Fprintf(w, "## Data quality: %s\n\n_error: %s_\n", r.Name, r.Err)
			} else {
				fmt.Fprintf(w, "%s: error: %s\n", r.Name, r.Err)
			}
			continue
		}
		if err := Render(w, r.Name, r.Diagnostics, opt); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	line := fmt.Sprintf("Total: %d datasets, %s", len(results), summaryLine(all))
	if failed > 0 {
		line += fmt.Sprintf(", %d failed", failed)
	}
	if opt.Format == FormatMarkdown {
		line = "**" + line + "**"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
