package diagnostics

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// skewThreshold is the null percentage above which a column is skewed.
	skewThreshold = 50.0
	// constantMinRows: a single repeated value is only suspicious above this row count.
	constantMinRows = 10
	// identifierMinRows: all-distinct values are only suspicious above this row count.
	identifierMinRows = 100
)

// Options tunes the engine. The zero value reproduces the reference behavior.
type Options struct {
	// SuppressRedundantMissing drops the "has no valid values" finding for columns that
	// were already reported as missing from the dataset.
	SuppressRedundantMissing bool
}

// Analyze inspects rows against the declared columns and returns the findings in a fixed
// order: key-presence findings first, then per-column statistics in columns order.
func Analyze(rows []Row, columns []string) []Diagnostic {
	return AnalyzeWithOptions(rows, columns, Options{})
}

// AnalyzeWithOptions is Analyze with engine options.
func AnalyzeWithOptions(rows []Row, columns []string, opt Options) []Diagnostic {
	out := make([]Diagnostic, 0)

	observed := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			observed[k] = struct{}{}
		}
	}
	absent := make(map[string]bool)
	for _, col := range columns {
		if _, ok := observed[col]; ok {
			continue
		}
		absent[col] = true
		out = append(out, Diagnostic{
			Type:     TypeMissing,
			Column:   col,
			Message:  fmt.Sprintf(`Column "%s" is missing from the dataset`, col),
			Severity: SeverityHigh,
		})
	}

	for _, col := range columns {
		if opt.SuppressRedundantMissing && absent[col] {
			continue
		}
		out = append(out, analyzeColumn(rows, col)...)
	}
	return out
}

func analyzeColumn(rows []Row, col string) []Diagnostic {
	n := len(rows)
	valid := make([]Value, 0, n)
	for _, row := range rows {
		if v := row[col]; v.Valid() {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return []Diagnostic{{
			Type:     TypeMissing,
			Column:   col,
			Message:  fmt.Sprintf(`Column "%s" has no valid values`, col),
			Severity: SeverityHigh,
		}}
	}

	var out []Diagnostic

	if kinds := distinctKinds(valid); len(kinds) > 1 {
		out = append(out, Diagnostic{
			Type:     TypeInvalid,
			Column:   col,
			Message:  fmt.Sprintf(`Column "%s" has inconsistent data types`, col),
			Severity: SeverityMedium,
			Details:  &Details{Types: kinds},
		})
	}

	if n > 0 {
		nulls := 0
		for _, row := range rows {
			if row[col].Empty() {
				nulls++
			}
		}
		pct := 100 * float64(nulls) / float64(n)
		// threshold is checked on the unrounded value
		if pct > skewThreshold {
			p := FormatPercent(pct)
			out = append(out, Diagnostic{
				Type:     TypeSkewed,
				Column:   col,
				Message:  fmt.Sprintf(`Column "%s" has %s%% missing or empty values`, col, p),
				Severity: SeverityHigh,
				Details:  &Details{NullPercentage: p},
			})
		}
	}

	first, unique := distinctValues(valid)
	if unique == 1 && n > constantMinRows {
		uv := first
		out = append(out, Diagnostic{
			Type:     TypeSuspicious,
			Column:   col,
			Message:  fmt.Sprintf(`Column "%s" has only one unique value across all rows`, col),
			Severity: SeverityLow,
			Details:  &Details{UniqueValue: &uv},
		})
	}
	if unique == n && n > identifierMinRows {
		out = append(out, Diagnostic{
			Type:     TypeSuspicious,
			Column:   col,
			Message:  fmt.Sprintf(`Column "%s" appears to be an ID column (all values unique)`, col),
			Severity: SeverityLow,
		})
	}
	return out
}

// distinctKinds returns kind names in order of first appearance.
func distinctKinds(vals []Value) []string {
	var seen [KindOther + 1]bool
	var out []string
	for _, v := range vals {
		if seen[v.kind] {
			continue
		}
		seen[v.kind] = true
		out = append(out, v.kind.Name())
	}
	return out
}

type valueKey struct {
	kind Kind
	key  string
}

// distinctValues counts distinct values and returns the first one seen.
func distinctValues(vals []Value) (Value, int) {
	seen := make(map[valueKey]struct{}, len(vals))
	for _, v := range vals {
		seen[valueKey{v.kind, v.key()}] = struct{}{}
	}
	var first Value
	if len(vals) > 0 {
		first = vals[0]
	}
	return first, len(seen)
}

// FormatPercent rounds half away from zero to one decimal place.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(math.Round(p*10)/10, 'f', 1, 64)
}
