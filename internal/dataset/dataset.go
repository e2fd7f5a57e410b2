package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

// Dataset is a parsed table: declared columns plus rows keyed by column name.
type Dataset struct {
	Name    string
	Source  string
	Format  string
	Columns []string
	Rows    []diagnostics.Row
	// TotalRows counts all data rows seen, including those dropped by MaxRows.
	TotalRows int
	Truncated bool
}

// Options controls loading.
type Options struct {
	// Delimiter for CSV. If 0, chosen from the file extension.
	Delimiter rune
	// InferTypes converts CSV cells that look like numbers or booleans.
	InferTypes bool
	// MaxRows limits rows kept; 0 means unlimited.
	MaxRows int
	// SheetName selects an XLSX sheet; SheetIndex (1-based) is used when empty.
	SheetName  string
	SheetIndex int
	// Columns overrides the declared column list for JSON inputs.
	Columns []string
}

// DefaultOptions returns the loader defaults.
func DefaultOptions() Options {
	return Options{MaxRows: 100000, SheetIndex: 1}
}

// Loader reads one family of file formats.
type Loader interface {
	CanLoad(name string) bool
	Load(path string, opt Options) (*Dataset, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

// ErrUnsupported indicates a file format no loader accepts.
var ErrUnsupported = errors.New("unsupported dataset format")

// Load selects a loader by file name.
func Load(path string, opt Options) (*Dataset, error) {
	for _, l := range registry {
		if l.CanLoad(path) {
			return l.Load(path, opt)
		}
	}
	return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
}

// Supported reports whether some loader accepts the file name.
func Supported(path string) bool {
	for _, l := range registry {
		if l.CanLoad(path) {
			return true
		}
	}
	return false
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
	Register(jsonLoader{})
}

// keep appends a row unless MaxRows is reached; it always counts the row.
func (d *Dataset) keep(row diagnostics.Row, opt Options) {
	d.TotalRows++
	if opt.MaxRows > 0 && len(d.Rows) >= opt.MaxRows {
		d.Truncated = true
		return
	}
	d.Rows = append(d.Rows, row)
}

// cleanName trims and NFC-normalizes a header so equivalent spellings match.
func cleanName(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return norm.NFC.String(strings.TrimSpace(s))
}

// inferValue maps a raw text cell to a typed value.
func inferValue(s string) diagnostics.Value {
	t := strings.TrimSpace(s)
	switch strings.ToLower(t) {
	case "true":
		return diagnostics.Bool(true)
	case "false":
		return diagnostics.Bool(false)
	}
	if t != "" && looksNumeric(t) && !leadingZero(t) {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return diagnostics.Number(f)
		}
	}
	return diagnostics.String(s)
}

// leadingZero reports codes like "007" that must keep their text.
func leadingZero(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

// looksNumeric rejects forms ParseFloat accepts but a spreadsheet would not (Inf, NaN, hex).
func looksNumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

func baseName(path string) string { return filepath.Base(path) }
