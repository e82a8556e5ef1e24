package contextmem

import "unicode/utf8"

// charsPerToken is the ratio used by the character-count heuristic. It matches
// the budget the downstream generation step assumes (~4 chars per token) and
// rounds up, so estimates never undercount real cost.
const charsPerToken = 4

// EstimateTokens maps text to an approximate token cost. Deterministic, no
// allocation, no network. Empty text costs nothing.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}
