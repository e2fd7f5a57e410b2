package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/datalens-cli/internal/dataset"
	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

// Options controls profiling.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// TopValues caps the categorical top-value list.
	TopValues int
	// Engine is passed through to the diagnostics engine.
	Engine diagnostics.Options
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{SampleRows: 5, TopValues: 8}
}

// Report is a markdown-friendly profile of a dataset with its quality findings.
type Report struct {
	Name        string
	Format      string
	Rows        int
	Processed   int
	Cols        []ColumnSummary
	Samples     [][]string
	Diagnostics []diagnostics.Diagnostic
	Warnings    []string
}

// ColumnSummary captures inferred kind and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric|boolean|datetime|categorical|text|unknown
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Categorical top values
	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// maxCategories bounds the distinct values tracked per column.
const maxCategories = 10000

type colAcc struct {
	name   string
	nonNil int
	miss   int

	// numeric stats via Welford
	n    int
	mean float64
	m2   float64
	min  float64
	max  float64

	boolCnt int
	dtCnt   int
	txtCnt  int
	cats    map[string]int
	exText  []string
}

func (c *colAcc) addNumber(x float64) {
	c.n++
	if x < c.min {
		c.min = x
	}
	if x > c.max {
		c.max = x
	}
	delta := x - c.mean
	c.mean += delta / float64(c.n)
	c.m2 += delta * (x - c.mean)
}

func (c *colAcc) addText(v string) {
	c.txtCnt++
	if len(c.cats) < maxCategories && len(v) <= 64 {
		c.cats[v]++
	}
	if len(c.exText) < 3 {
		c.exText = append(c.exText, v)
	}
}

// Profile summarizes each declared column and runs the diagnostics engine over the rows.
func Profile(ds *dataset.Dataset, opt Options) *Report {
	rep := &Report{Name: ds.Name, Format: ds.Format, Rows: ds.TotalRows, Processed: len(ds.Rows)}
	if rep.Rows < rep.Processed {
		rep.Rows = rep.Processed
	}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	topN := opt.TopValues
	if topN <= 0 {
		topN = 8
	}

	cols := make([]*colAcc, len(ds.Columns))
	for i, name := range ds.Columns {
		cols[i] = &colAcc{name: name, min: math.Inf(1), max: math.Inf(-1), cats: make(map[string]int)}
	}

	for ri, row := range ds.Rows {
		if ri < sampleRows {
			sample := make([]string, len(ds.Columns))
			for j, name := range ds.Columns {
				sample[j] = row[name].Text()
			}
			rep.Samples = append(rep.Samples, sample)
		}
		for j, name := range ds.Columns {
			c := cols[j]
			v := row[name]
			if !v.Valid() {
				c.miss++
				continue
			}
			c.nonNil++
			switch v.Kind() {
			case diagnostics.KindNumber:
				c.addNumber(v.Num())
				continue
			case diagnostics.KindBool:
				c.boolCnt++
				continue
			case diagnostics.KindOther:
				c.addText(v.Str())
				continue
			}
			s := strings.TrimSpace(v.Str())
			if x, ok := parseNumeric(s); ok {
				c.addNumber(x)
				continue
			}
			if b := strings.ToLower(s); b == "true" || b == "false" {
				c.boolCnt++
				continue
			}
			if _, ok := parseTimeMaybe(s); ok {
				c.dtCnt++
				continue
			}
			c.addText(s)
		}
	}

	rep.Cols = make([]ColumnSummary, 0, len(cols))
	for _, c := range cols {
		rep.Cols = append(rep.Cols, c.summary(topN))
	}
	rep.Diagnostics = diagnostics.AnalyzeWithOptions(ds.Rows, ds.Columns, opt.Engine)

	if ds.Truncated {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", rep.Processed, rep.Rows))
	}
	return rep
}

// summary decides the kind by predominant parsed type.
func (c *colAcc) summary(topN int) ColumnSummary {
	s := ColumnSummary{Name: c.name, NonNull: c.nonNil, Missing: c.miss, Kind: "unknown"}
	switch {
	case c.n > 0 && c.n >= c.boolCnt && c.n >= c.dtCnt && c.n >= c.txtCnt:
		s.Kind = "numeric"
		s.Min, s.Max, s.Mean = c.min, c.max, c.mean
		if c.n > 1 {
			s.Std = math.Sqrt(c.m2 / float64(c.n-1))
		}
	case c.boolCnt > 0 && c.boolCnt >= c.dtCnt && c.boolCnt >= c.txtCnt:
		s.Kind = "boolean"
	case c.dtCnt > 0 && c.dtCnt >= c.txtCnt:
		s.Kind = "datetime"
	case len(c.cats) > 0 && len(c.cats) < c.txtCnt:
		s.Kind = "categorical"
		tops := make([]CategoryCount, 0, len(c.cats))
		for k, v := range c.cats {
			tops = append(tops, CategoryCount{Value: k, Count: v})
		}
		sort.Slice(tops, func(i, j int) bool {
			if tops[i].Count == tops[j].Count {
				return tops[i].Value < tops[j].Value
			}
			return tops[i].Count > tops[j].Count
		})
		if len(tops) > topN {
			tops = tops[:topN]
		}
		s.TopValues = tops
		s.Unique = len(c.cats)
	case c.txtCnt > 0:
		s.Kind = "text"
		s.Unique = len(c.cats)
		s.ExampleTexts = c.exText
	}
	return s
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric accepts plain numbers plus common decorations: percent signs, thousands
// separators and a comma decimal separator.
func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	raw = strings.TrimSuffix(raw, "%")
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if !strings.ContainsRune("0123456789.,-+eE ", r) {
			return 0, false
		}
	}
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	dec := '.'
	if cpos > dpos {
		dec = ','
	}
	for _, sep := range []rune{',', '.', ' '} {
		if sep != dec {
			raw = strings.ReplaceAll(raw, string(sep), "")
		}
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
