package utils_test

import (
	"strings"
	"testing"

	"github.com/KaramelBytes/datalens-cli/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"short", "hi", 1},
		{"simple", "hello world!", 3},
		{"runes", strings.Repeat("é", 8), 2},
		{"long", strings.Repeat("a", 4000), 1000},
	}
	for _, c := range cases {
		if got := utils.CountTokens(c.in); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("abcd efgh\n", 500)
	trunc := utils.TruncateToTokenLimit(text, 300)
	if n := utils.CountTokens(trunc); n > 300 {
		t.Fatalf("tokens=%d exceeds limit", n)
	}
	if !strings.HasSuffix(trunc, utils.TruncationMarker) {
		t.Fatalf("missing truncation marker: %q", trunc[len(trunc)-40:])
	}
	body := strings.TrimSuffix(trunc, utils.TruncationMarker)
	if !strings.HasSuffix(body, "abcd efgh") {
		t.Fatalf("expected cut on a line boundary, got tail %q", body[len(body)-12:])
	}
}

func TestTruncateToTokenLimitNoop(t *testing.T) {
	if got := utils.TruncateToTokenLimit("short text", 100); got != "short text" {
		t.Fatalf("got %q", got)
	}
	if got := utils.TruncateToTokenLimit("anything", 0); got != "" {
		t.Fatalf("got %q for zero limit", got)
	}
}

func TestTokenBreakdown(t *testing.T) {
	got := utils.TokenBreakdown(map[string]string{"context": strings.Repeat("x", 40), "question": "why?"})
	if got["context"] != 10 || got["question"] != 1 {
		t.Fatalf("breakdown = %v", got)
	}
}
