package summarizer

import (
	"context"
	"strings"
)

// MockAdapter is a deterministic offline summarizer for local/dev use and
// tests. It stitches the prior summary together with the first sentence of
// each turn and trims to the requested budget.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (m *MockAdapter) Summarize(_ context.Context, req Request) (string, error) {
	parts := make([]string, 0, len(req.Turns)+1)
	if s := strings.TrimSpace(req.PriorSummary); s != "" {
		parts = append(parts, s)
	}
	for _, turn := range req.Turns {
		parts = append(parts, firstSentence(turn))
	}

	out := strings.Join(parts, " ")
	if req.MaxChars > 0 && len(out) > req.MaxChars {
		out = out[:req.MaxChars]
	}
	return out, nil
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			return s[:i+1]
		}
	}
	return s
}
