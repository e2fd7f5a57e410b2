package diagnostics

// Summary counts findings by type and by severity.
type Summary struct {
	Total      int              `json:"total"`
	ByType     map[Type]int     `json:"by_type"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Summarize tallies ds. Every known type and severity is present in the maps.
func Summarize(ds []Diagnostic) Summary {
	s := Summary{
		Total:      len(ds),
		ByType:     make(map[Type]int, len(Types)),
		BySeverity: make(map[Severity]int, len(Severities)),
	}
	for _, t := range Types {
		s.ByType[t] = 0
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, d := range ds {
		s.ByType[d.Type]++
		s.BySeverity[d.Severity]++
	}
	return s
}

// Filter keeps findings whose severity is at least min, preserving order.
func Filter(ds []Diagnostic, min Severity) []Diagnostic {
	out := make([]Diagnostic, 0, len(ds))
	for _, d := range ds {
		if d.Severity >= min {
			out = append(out, d)
		}
	}
	return out
}

// Highest returns the most severe level present in ds.
func Highest(ds []Diagnostic) (Severity, bool) {
	var max Severity
	for _, d := range ds {
		if d.Severity > max {
			max = d.Severity
		}
	}
	return max, max != 0
}
