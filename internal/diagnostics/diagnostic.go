package diagnostics

import (
	"fmt"
	"strings"
)

// Type classifies a finding.
type Type string

const (
	TypeMissing    Type = "missing"
	TypeInvalid    Type = "invalid"
	TypeSkewed     Type = "skewed"
	TypeSuspicious Type = "suspicious"
)

// Types lists every finding type in display order.
var Types = []Type{TypeMissing, TypeInvalid, TypeSkewed, TypeSuspicious}

// Severity ranks findings; higher values are more severe.
type Severity uint8

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "unknown"
}

// ParseSeverity accepts low, medium or high in any case.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium", "med":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	return 0, fmt.Errorf("unknown severity %q (use low|medium|high)", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Diagnostic is one data-quality finding about a single column.
type Diagnostic struct {
	Type     Type     `json:"type"`
	Column   string   `json:"column"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Details  *Details `json:"details,omitempty"`
}

// Details carries the statistic behind a finding.
type Details struct {
	Types          []string `json:"types,omitempty"`
	NullPercentage string   `json:"nullPercentage,omitempty"`
	UniqueValue    *Value   `json:"uniqueValue,omitempty"`
}
