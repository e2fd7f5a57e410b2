package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

func sample() []diagnostics.Diagnostic {
	rows := []diagnostics.Row{
		{"id": diagnostics.String("1"), "age": diagnostics.Number(30)},
		{"id": diagnostics.String("2"), "age": diagnostics.String("")},
		{"id": diagnostics.String("3"), "age": diagnostics.String("bad")},
	}
	return diagnostics.Analyze(rows, []string{"id", "age", "名前"})
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, "md": FormatMarkdown} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}

func TestRenderTextAlignedTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "people.csv", sample(), Options{Format: FormatText}))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "people.csv: 3 issues (high 2, medium 1, low 0)", lines[0])
	assert.Equal(t, "TYPE     COLUMN  SEVERITY  MESSAGE", lines[1])
	assert.Equal(t, `missing  名前    high      Column "名前" is missing from the dataset`, lines[2])
	assert.Equal(t, `invalid  age     medium    Column "age" has inconsistent data types [number, string]`, lines[3])
	assert.Equal(t, `missing  名前    high      Column "名前" has no valid values`, lines[4])
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestRenderTextColor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "people.csv", sample(), Options{Format: FormatText, Color: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestRenderTextTruncatesMessages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "x", sample()[:1], Options{MaxMessageWidth: 13}))
	assert.Contains(t, buf.String(), `Column "名...`)
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "clean.csv", nil, Options{Format: FormatText}))
	assert.Equal(t, "clean.csv: no data quality issues found\n", buf.String())

	buf.Reset()
	require.NoError(t, Render(&buf, "clean.csv", nil, Options{Format: FormatMarkdown}))
	assert.Contains(t, buf.String(), "_no data quality issues found_")

	buf.Reset()
	require.NoError(t, Render(&buf, "clean.csv", nil, Options{Format: FormatJSON}))
	assert.JSONEq(t, `{
		"dataset": "clean.csv",
		"count": 0,
		"summary": {
			"total": 0,
			"byType": {"missing": 0, "invalid": 0, "skewed": 0, "suspicious": 0},
			"bySeverity": {"high": 0, "medium": 0, "low": 0}
		},
		"diagnostics": []
	}`, buf.String())
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "people.csv", sample(), Options{Format: FormatJSON}))
	var doc struct {
		Dataset     string `json:"dataset"`
		Count       int    `json:"count"`
		Diagnostics []struct {
			Type     string `json:"type"`
			Severity string `json:"severity"`
			Details  *struct {
				Types []string `json:"types"`
			} `json:"details"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "people.csv", doc.Dataset)
	assert.Equal(t, 3, doc.Count)
	require.Len(t, doc.Diagnostics, 3)
	assert.Equal(t, "invalid", doc.Diagnostics[1].Type)
	assert.Equal(t, "medium", doc.Diagnostics[1].Severity)
	assert.Equal(t, []string{"number", "string"}, doc.Diagnostics[1].Details.Types)
	assert.Nil(t, doc.Diagnostics[0].Details)
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	d := []diagnostics.Diagnostic{{Type: diagnostics.TypeSuspicious, Column: "a|b", Message: "m", Severity: diagnostics.SeverityLow}}
	require.NoError(t, Render(&buf, "t.csv", d, Options{Format: FormatMarkdown}))
	out := buf.String()
	assert.Contains(t, out, "## Data quality: t.csv")
	assert.Contains(t, out, "| Type | Column | Severity | Message |")
	assert.Contains(t, out, `| suspicious | a\|b | low | m |`)
}

func TestRenderBatchText(t *testing.T) {
	var buf bytes.Buffer
	results := []Result{
		{Name: "people.csv", Diagnostics: sample()},
		{Name: "broken.csv", Err: errors.New("read row 2: bad quote")},
		{Name: "clean.csv"},
	}
	require.NoError(t, RenderBatch(&buf, results, Options{Format: FormatText}))
	out := buf.String()
	assert.Contains(t, out, "people.csv: 3 issues")
	assert.Contains(t, out, "broken.csv: error: read row 2: bad quote")
	assert.Contains(t, out, "clean.csv: no data quality issues found")
	assert.True(t, strings.HasSuffix(out, "Total: 3 datasets, 3 issues (high 2, medium 1, low 0), 1 failed\n"))
	assert.Less(t, strings.Index(out, "people.csv"), strings.Index(out, "broken.csv"))
}

func TestRenderBatchJSON(t *testing.T) {
	var buf bytes.Buffer
	results := []Result{
		{Name: "people.csv", Diagnostics: sample()},
		{Name: "broken.csv", Err: errors.New("boom")},
	}
	require.NoError(t, RenderBatch(&buf, results, Options{Format: FormatJSON}))
	var doc struct {
		Datasets []map[string]any `json:"datasets"`
		Failed   int              `json:"failed"`
		Summary  struct {
			Total int `json:"total"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Datasets, 2)
	assert.Equal(t, "people.csv", doc.Datasets[0]["dataset"])
	assert.Equal(t, "boom", doc.Datasets[1]["error"])
	assert.Equal(t, 1, doc.Failed)
	assert.Equal(t, 3, doc.Summary.Total)
}
