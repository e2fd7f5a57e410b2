package utils

import "strings"

// charsPerToken is the rough ratio used for budget estimates.
const charsPerToken = 4

// TruncationMarker is appended when text is cut to fit a token budget.
const TruncationMarker = "\n[... truncated to fit context ...]"

// CountTokens estimates tokens as one per four runes; non-empty text counts at least one.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / charsPerToken
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit cuts text to roughly fit within limit tokens. The cut is moved back to
// the last line break when one exists in the kept half, so tables are not split mid-row.
// The marker is included in the budget.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * charsPerToken
	if charLimit >= len(runes) {
		return text
	}
	marker := []rune(TruncationMarker)
	keep := charLimit - len(marker)
	if keep <= 0 {
		return string(runes[:charLimit])
	}
	head := string(runes[:keep])
	if i := strings.LastIndexByte(head, '\n'); i > len(head)/2 {
		head = head[:i]
	}
	return head + TruncationMarker
}

// TokenBreakdown returns a simple breakdown map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
