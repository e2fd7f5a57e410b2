package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".xlsx")
}

// Load reads the selected sheet. Its first row is the header; cells keep their
// spreadsheet types (boolean, number, string). A sheet does not store blank cells, so
// every header column of a non-empty row gets a key and blank ones are Missing.
func (xlsxLoader) Load(p string, opt Options) (*Dataset, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := parseWorkbook(readZipFile(zr, "xl/workbook.xml"))
	rels := parseRelationships(readZipFile(zr, "xl/_rels/workbook.xml.rels"))
	shared := parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml"))

	target, sheetLabel, err := resolveSheet(sheets, rels, opt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", baseName(p), err)
	}
	sheetXML := readZipFile(zr, target)
	if sheetXML == nil {
		return nil, fmt.Errorf("%s: worksheet %s not found", baseName(p), target)
	}

	ds := &Dataset{Name: baseName(p), Source: p, Format: "xlsx"}
	if sheetLabel != "" {
		ds.Name = fmt.Sprintf("%s (sheet: %s)", ds.Name, sheetLabel)
	}
	rr := newSheetRowReader(sheetXML, shared)
	header, ok := rr.Next()
	if !ok {
		return ds, nil
	}
	ds.Columns = make([]string, len(header))
	for i, c := range header {
		ds.Columns[i] = cleanName(c.Text())
	}
	for {
		cells, ok := rr.Next()
		if !ok {
			break
		}
		row := make(diagnostics.Row, len(ds.Columns))
		filled := false
		for i, col := range ds.Columns {
			v := diagnostics.Missing()
			if i < len(cells) {
				v = cells[i]
			}
			row[col] = v
			if v.Kind() != diagnostics.KindMissing {
				filled = true
			}
		}
		if !filled {
			continue
		}
		ds.keep(row, opt)
	}
	return ds, nil
}

type sheetInfo struct {
	Name string
	RID  string
}

func resolveSheet(sheets []sheetInfo, rels map[string]string, opt Options) (target, label string, err error) {
	if opt.SheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, opt.SheetName) {
				if rel, ok := rels[s.RID]; ok {
					return normalizeRelPath(rel), s.Name, nil
				}
			}
		}
		names := make([]string, len(sheets))
		for i, s := range sheets {
			names[i] = s.Name
		}
		return "", "", fmt.Errorf("sheet %q not found; available sheets: %s", opt.SheetName, strings.Join(names, ", "))
	}
	idx := opt.SheetIndex
	if idx <= 0 {
		idx = 1
	}
	// The index is the sheet's position in the workbook, not its sheetId.
	if len(sheets) > 0 {
		if idx > len(sheets) {
			return "", "", fmt.Errorf("sheet index %d out of range; workbook has %d sheet(s)", idx, len(sheets))
		}
		s := sheets[idx-1]
		if rel, ok := rels[s.RID]; ok {
			return normalizeRelPath(rel), s.Name, nil
		}
	}
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", idx)), "", nil
}

func parseWorkbook(data []byte) []sheetInfo {
	var out []sheetInfo
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s sheetInfo
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "id":
				s.RID = a.Value
			}
		}
		out = append(out, s)
	}
}

func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		return b
	}
	return nil
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

// sheetRowReader streams typed rows out of a worksheet.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

// Next returns the next row, indexed by column position; cells never written are Missing.
func (r *sheetRowReader) Next() ([]diagnostics.Value, bool) {
	var cur []diagnostics.Value
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				inRow = true
				cur = nil
				continue
			}
			if !inRow || se.Name.Local != "c" {
				continue
			}
			var ref, typ string
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "r":
					ref = a.Value
				case "t":
					typ = a.Value
				}
			}
			idx := colIndexFromRef(ref)
			if idx < 0 {
				idx = len(cur)
			}
			v := r.readCell(typ)
			if len(cur) <= idx {
				grown := make([]diagnostics.Value, idx+1)
				copy(grown, cur)
				cur = grown
			}
			cur[idx] = v
		case xml.EndElement:
			if se.Name.Local == "row" {
				return cur, true
			}
		}
	}
}

// readCell consumes tokens up to </c> and converts the raw text by cell type.
func (r *sheetRowReader) readCell(typ string) diagnostics.Value {
	var raw string
	var seen bool
	for {
		tok, err := r.dec.Token()
		if err != nil {
			break
		}
		if se, ok := tok.(xml.StartElement); ok && (se.Name.Local == "v" || se.Name.Local == "t") {
			raw = r.readText(se.Name.Local)
			seen = true
			continue
		}
		if ee, ok := tok.(xml.EndElement); ok && ee.Name.Local == "c" {
			break
		}
	}
	if !seen {
		return diagnostics.Missing()
	}
	switch typ {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || i < 0 || i >= len(r.shared) {
			return diagnostics.String("")
		}
		return diagnostics.String(r.shared[i])
	case "b":
		return diagnostics.Bool(strings.TrimSpace(raw) == "1")
	case "inlineStr", "str", "e":
		return diagnostics.String(raw)
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return diagnostics.Number(f)
	}
	return diagnostics.String(raw)
}

func (r *sheetRowReader) readText(elem string) string {
	var sb strings.Builder
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return sb.String()
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == elem {
				return sb.String()
			}
		}
	}
}

// colIndexFromRef maps a cell reference like "C12" to a 0-based column index.
func colIndexFromRef(ref string) int {
	idx := 0
	n := 0
	for _, c := range strings.ToUpper(ref) {
		if c < 'A' || c > 'Z' {
			break
		}
		idx = idx*26 + int(c-'A'+1)
		n++
	}
	if n == 0 {
		return -1
	}
	return idx - 1
}

// normalizeRelPath converts relationship targets to ZIP entry names.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
