package workspace

import (
	"time"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

// DatasetRef holds metadata about a checked dataset. Contents are never stored.
type DatasetRef struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Columns   []string  `json:"columns"`
	Rows      int       `json:"rows"`
	Summary   Summary   `json:"summary"`
	CheckedAt time.Time `json:"checked_at"`
}

// Summary is the persisted digest of one diagnosis run.
type Summary struct {
	Total   int    `json:"total"`
	High    int    `json:"high"`
	Medium  int    `json:"medium"`
	Low     int    `json:"low"`
	Highest string `json:"highest,omitempty"`
}

// NewSummary condenses diagnostics into counts by severity.
func NewSummary(ds []diagnostics.Diagnostic) Summary {
	s := diagnostics.Summarize(ds)
	out := Summary{
		Total:  s.Total,
		High:   s.BySeverity[diagnostics.SeverityHigh],
		Medium: s.BySeverity[diagnostics.SeverityMedium],
		Low:    s.BySeverity[diagnostics.SeverityLow],
	}
	if h, ok := diagnostics.Highest(ds); ok {
		out.Highest = h.String()
	}
	return out
}
