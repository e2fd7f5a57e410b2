package dataset

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

type jsonLoader struct{}

func (jsonLoader) CanLoad(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".json") || strings.HasSuffix(n, ".jsonl") || strings.HasSuffix(n, ".ndjson")
}

func (jsonLoader) Load(path string, opt Options) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	lines := !strings.HasSuffix(strings.ToLower(path), ".json")
	ds, err := ReadJSON(b, lines, opt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", baseName(path), err)
	}
	ds.Name = baseName(path)
	ds.Source = path
	return ds, nil
}

// ReadJSON parses either a top-level array of objects or, when lines is set, one object per
// line. Columns are taken from opt.Columns when given, otherwise from object keys in order
// of first appearance.
func ReadJSON(b []byte, lines bool, opt Options) (*Dataset, error) {
	ds := &Dataset{Format: "json"}
	seen := map[string]bool{}
	var keys []string

	add := func(obj gjson.Result, where string) error {
		if !obj.IsObject() {
			return fmt.Errorf("%s: expected an object, got %s", where, obj.Type)
		}
		row := diagnostics.Row{}
		obj.ForEach(func(k, v gjson.Result) bool {
			name := cleanName(k.String())
			row[name] = fromJSON(v)
			if !seen[name] {
				seen[name] = true
				keys = append(keys, name)
			}
			return true
		})
		ds.keep(row, opt)
		return nil
	}

	if lines {
		ds.Format = "jsonl"
		sc := bufio.NewScanner(bytes.NewReader(b))
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for n := 1; sc.Scan(); n++ {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			if !gjson.ValidBytes(line) {
				return nil, fmt.Errorf("line %d: invalid json", n)
			}
			if err := add(gjson.ParseBytes(line), fmt.Sprintf("line %d", n)); err != nil {
				return nil, err
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("scan lines: %w", err)
		}
	} else {
		if len(bytes.TrimSpace(b)) == 0 {
			return ds, nil
		}
		if !gjson.ValidBytes(b) {
			return nil, fmt.Errorf("invalid json")
		}
		root := gjson.ParseBytes(b)
		if !root.IsArray() {
			return nil, fmt.Errorf("expected a top-level array of objects")
		}
		var err error
		i := 0
		root.ForEach(func(_, v gjson.Result) bool {
			err = add(v, fmt.Sprintf("element %d", i))
			i++
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(opt.Columns) > 0 {
		ds.Columns = append([]string(nil), opt.Columns...)
	} else {
		ds.Columns = keys
	}
	return ds, nil
}

func fromJSON(v gjson.Result) diagnostics.Value {
	switch v.Type {
	case gjson.Null:
		return diagnostics.Null()
	case gjson.True:
		return diagnostics.Bool(true)
	case gjson.False:
		return diagnostics.Bool(false)
	case gjson.Number:
		return diagnostics.Number(v.Float())
	case gjson.String:
		return diagnostics.String(v.String())
	}
	return diagnostics.Other(v.Raw)
}
