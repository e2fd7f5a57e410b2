package dataset

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestReadCSVShortRowsAndBlankLines(t *testing.T) {
	in := "\ufeffid, name ,age\n1,ann,30\n\n2,bob\n3,cy,41,extra\n"
	ds, err := ReadCSV(strings.NewReader(in), ',', Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "age"}, ds.Columns)
	require.Len(t, ds.Rows, 3)

	_, ok := ds.Rows[1]["age"]
	assert.False(t, ok, "short row leaves the key absent")
	assert.Equal(t, diagnostics.String("bob"), ds.Rows[1]["name"])
	assert.Len(t, ds.Rows[2], 3)
	assert.Equal(t, diagnostics.KindString, ds.Rows[0]["age"].Kind())
}

func TestReadCSVInferTypes(t *testing.T) {
	in := "a,b,c,d\n1.5,TRUE,x,\n-2,false,1e3,inf\n"
	ds, err := ReadCSV(strings.NewReader(in), ',', Options{InferTypes: true})
	require.NoError(t, err)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, diagnostics.Number(1.5), ds.Rows[0]["a"])
	assert.Equal(t, diagnostics.Bool(true), ds.Rows[0]["b"])
	assert.Equal(t, diagnostics.String("x"), ds.Rows[0]["c"])
	assert.Equal(t, diagnostics.String(""), ds.Rows[0]["d"])
	assert.Equal(t, diagnostics.Number(1000), ds.Rows[1]["c"])
	assert.Equal(t, diagnostics.String("inf"), ds.Rows[1]["d"])
}

func TestReadCSVLeadingZeroCodesStayText(t *testing.T) {
	in := "code\n007\n7.0\n0\n0.5\n-01\n"
	ds, err := ReadCSV(strings.NewReader(in), ',', Options{InferTypes: true})
	require.NoError(t, err)
	require.Len(t, ds.Rows, 5)
	assert.Equal(t, diagnostics.String("007"), ds.Rows[0]["code"])
	assert.Equal(t, diagnostics.Number(7), ds.Rows[1]["code"])
	assert.Equal(t, diagnostics.Number(0), ds.Rows[2]["code"])
	assert.Equal(t, diagnostics.Number(0.5), ds.Rows[3]["code"])
	assert.Equal(t, diagnostics.String("-01"), ds.Rows[4]["code"])
	assert.False(t, ds.Rows[0]["code"].Equal(ds.Rows[1]["code"]))

	ds, err = ReadCSV(strings.NewReader(in), ',', DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, diagnostics.String("7.0"), ds.Rows[1]["code"], "typing is opt-in")
}

func TestReadCSVMaxRows(t *testing.T) {
	in := "a\n1\n2\n3\n"
	ds, err := ReadCSV(strings.NewReader(in), ',', Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Len(t, ds.Rows, 2)
	assert.Equal(t, 3, ds.TotalRows)
	assert.True(t, ds.Truncated)
}

func TestReadCSVEmpty(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(""), ',', Options{})
	require.NoError(t, err)
	assert.Empty(t, ds.Columns)
	assert.Empty(t, ds.Rows)
}

func TestLoadTSVByExtension(t *testing.T) {
	p := writeFile(t, "t.tsv", "x\ty\n1\t2\n")
	ds, err := Load(p, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "tsv", ds.Format)
	assert.Equal(t, "t.tsv", ds.Name)
	assert.Equal(t, diagnostics.String("2"), ds.Rows[0]["y"])
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load("notes.docx", DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.False(t, Supported("notes.docx"))
	assert.True(t, Supported("DATA.CSV"))
}

func TestReadJSONArray(t *testing.T) {
	in := `[{"id":1,"name":"ann","tags":["a"]},{"id":2,"name":null,"active":true}]`
	ds, err := ReadJSON([]byte(in), false, Options{})
	require.NoError(t, err)
	assert.Equal(t, "json", ds.Format)
	assert.Equal(t, []string{"id", "name", "tags", "active"}, ds.Columns)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, diagnostics.Number(1), ds.Rows[0]["id"])
	assert.Equal(t, diagnostics.KindOther, ds.Rows[0]["tags"].Kind())
	assert.Equal(t, `["a"]`, ds.Rows[0]["tags"].Str())
	assert.Equal(t, diagnostics.KindNull, ds.Rows[1]["name"].Kind())
	_, ok := ds.Rows[0]["active"]
	assert.False(t, ok)
}

func TestReadJSONLinesAndColumnsOverride(t *testing.T) {
	in := "{\"a\":\"x\"}\n\n{\"a\":\"y\",\"b\":false}\n"
	ds, err := ReadJSON([]byte(in), true, Options{Columns: []string{"a", "c"}})
	require.NoError(t, err)
	assert.Equal(t, "jsonl", ds.Format)
	assert.Equal(t, []string{"a", "c"}, ds.Columns)
	assert.Len(t, ds.Rows, 2)

	got := diagnostics.Analyze(ds.Rows, ds.Columns)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Column)
}

func TestReadJSONErrors(t *testing.T) {
	_, err := ReadJSON([]byte(`{"a":1}`), false, Options{})
	assert.Error(t, err)
	_, err = ReadJSON([]byte(`[1,2]`), false, Options{})
	assert.Error(t, err)
	_, err = ReadJSON([]byte("{\"a\":1}\n{oops"), true, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

const (
	workbookXML = `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Notes" sheetId="1" r:id="rId1"/><sheet name="Data" sheetId="2" r:id="rId2"/></sheets>
</workbook>`
	relsXML = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="worksheet" Target="/xl/worksheets/sheet2.xml"/>
</Relationships>`
	sharedXML = `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>id</t></si><si><t>name</t></si><si><t>ok</t></si><si><t>ann</t></si><si><r><t>b</t></r><r><t>ob</t></r></si>
</sst>`
	sheet1XML = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>memo</t></is></c></row>
<row r="2"><c r="A2" t="inlineStr"><is><t>hello</t></is></c></row>
</sheetData></worksheet>`
	sheet2XML = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="s"><v>2</v></c></row>
<row r="2"><c r="A2"><v>1</v></c><c r="B2" t="s"><v>3</v></c><c r="C2" t="b"><v>1</v></c></row>
<row r="3"><c r="A3"><v>2.5</v></c><c r="C3" t="b"><v>0</v></c></row>
<row r="4"><c r="B4" t="s"><v>4</v></c></row>
<row r="5"></row>
</sheetData></worksheet>`
)

func writeXLSX(t *testing.T) string {
	t.Helper()
	return writeXLSXFiles(t, map[string]string{
		"xl/workbook.xml":            workbookXML,
		"xl/_rels/workbook.xml.rels": relsXML,
		"xl/sharedStrings.xml":       sharedXML,
		"xl/worksheets/sheet1.xml":   sheet1XML,
		"xl/worksheets/sheet2.xml":   sheet2XML,
	})
}

func writeXLSXFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "book.xlsx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestLoadXLSXBySheetName(t *testing.T) {
	p := writeXLSX(t)
	opt := DefaultOptions()
	opt.SheetName = "data"
	ds, err := Load(p, opt)
	require.NoError(t, err)
	assert.Equal(t, "book.xlsx (sheet: Data)", ds.Name)
	assert.Equal(t, "xlsx", ds.Format)
	assert.Equal(t, []string{"id", "name", "ok"}, ds.Columns)
	require.Len(t, ds.Rows, 3)

	assert.Equal(t, diagnostics.Number(1), ds.Rows[0]["id"])
	assert.Equal(t, diagnostics.String("ann"), ds.Rows[0]["name"])
	assert.Equal(t, diagnostics.Bool(true), ds.Rows[0]["ok"])

	assert.Equal(t, diagnostics.Missing(), ds.Rows[1]["name"], "blank cell keeps its header key")
	assert.Equal(t, diagnostics.Bool(false), ds.Rows[1]["ok"])

	assert.Equal(t, diagnostics.String("bob"), ds.Rows[2]["name"])
	assert.Len(t, ds.Rows[2], 3)
	assert.Equal(t, diagnostics.Missing(), ds.Rows[2]["ok"])
}

func TestLoadXLSXBlankColumnIsNotAbsent(t *testing.T) {
	p := writeXLSXFiles(t, map[string]string{
		"xl/workbook.xml": `<workbook xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets><sheet name="S" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships><Relationship Id="rId1" Target="worksheets/sheet1.xml"/></Relationships>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>id</t></is></c><c r="B1" t="inlineStr"><is><t>notes</t></is></c></row>
<row r="2"><c r="A2"><v>1</v></c></row>
<row r="3"><c r="A3"><v>2</v></c></row>
</sheetData></worksheet>`,
	})
	ds, err := Load(p, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, ds.Rows, 2)

	got := diagnostics.Analyze(ds.Rows, ds.Columns)
	require.Len(t, got, 1)
	assert.Equal(t, `Column "notes" has no valid values`, got[0].Message)

	csv, err := ReadCSV(strings.NewReader("id,notes\n1,\n2,\n"), ',', Options{InferTypes: true})
	require.NoError(t, err)
	assert.Equal(t, got, diagnostics.Analyze(csv.Rows, csv.Columns))
}

func TestLoadXLSXIndexIsWorkbookPosition(t *testing.T) {
	p := writeXLSXFiles(t, map[string]string{
		"xl/workbook.xml": `<workbook xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>
<sheet name="Second" sheetId="7" r:id="rId2"/><sheet name="First" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships><Relationship Id="rId1" Target="worksheets/sheet1.xml"/><Relationship Id="rId2" Target="worksheets/sheet2.xml"/></Relationships>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>first</t></is></c></row></sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<worksheet><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>second</t></is></c></row></sheetData></worksheet>`,
	})
	ds, err := Load(p, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "book.xlsx (sheet: Second)", ds.Name)
	assert.Equal(t, []string{"second"}, ds.Columns)

	opt := DefaultOptions()
	opt.SheetIndex = 2
	ds, err = Load(p, opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, ds.Columns)

	opt.SheetIndex = 3
	_, err = Load(p, opt)
	assert.ErrorContains(t, err, "sheet index 3 out of range")
}

func TestLoadXLSXByIndex(t *testing.T) {
	p := writeXLSX(t)
	ds, err := Load(p, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"memo"}, ds.Columns)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, diagnostics.String("hello"), ds.Rows[0]["memo"])

	opt := DefaultOptions()
	opt.SheetIndex = 2
	ds, err = Load(p, opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "ok"}, ds.Columns)
}

func TestLoadXLSXUnknownSheet(t *testing.T) {
	p := writeXLSX(t)
	opt := DefaultOptions()
	opt.SheetName = "Summary"
	_, err := Load(p, opt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available sheets: Notes, Data")
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeRelPath(tt.input), tt.input)
	}
}

func TestColIndexFromRef(t *testing.T) {
	assert.Equal(t, 0, colIndexFromRef("A1"))
	assert.Equal(t, 25, colIndexFromRef("Z9"))
	assert.Equal(t, 26, colIndexFromRef("AA10"))
	assert.Equal(t, -1, colIndexFromRef("12"))
}
