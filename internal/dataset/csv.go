package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

type csvLoader struct{}

func (csvLoader) CanLoad(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".csv") || strings.HasSuffix(n, ".tsv")
}

func (csvLoader) Load(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	ds, err := ReadCSV(f, delim, opt)
	if err != nil {
		return nil, err
	}
	ds.Name = baseName(path)
	ds.Source = path
	return ds, nil
}

// ReadCSV reads a header row followed by data rows. Blank lines are skipped, short rows
// leave their trailing columns absent and extra fields are ignored.
func ReadCSV(r io.Reader, delim rune, opt Options) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	ds := &Dataset{Format: "csv"}
	if delim == '\t' {
		ds.Format = "tsv"
	}
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ds, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	ds.Columns = make([]string, len(header))
	for i, h := range header {
		ds.Columns[i] = cleanName(h)
	}

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if blankRecord(rec) {
			continue
		}
		row := make(diagnostics.Row, len(ds.Columns))
		for i, col := range ds.Columns {
			if i >= len(rec) {
				break
			}
			if opt.InferTypes {
				row[col] = inferValue(rec[i])
			} else {
				row[col] = diagnostics.String(rec[i])
			}
		}
		ds.keep(row, opt)
	}
	return ds, nil
}

func blankRecord(rec []string) bool {
	return len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "")
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}
