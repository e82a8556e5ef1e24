package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is the normalized summarization request built by the compaction
// engine: a prior summary (possibly empty), the retired turns rendered as
// role-prefixed lines, and a character budget for the reply.
type Request struct {
	Instruction  string   `json:"instruction"`
	PriorSummary string   `json:"prior_summary,omitempty"`
	Turns        []string `json:"turns"`
	MaxChars     int      `json:"max_chars"`
}

// Adapter condenses a batch of turns plus a prior summary into a shorter
// narrative. Implementations may be slow or unavailable; callers bound every
// call with a context deadline and treat failures as skippable.
type Adapter interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Config controls adapter construction.
type Config struct {
	Mode string
	URL  string
}

// NewAdapter builds an adapter for the configured mode. "auto" prefers the
// HTTP provider when a URL is configured and falls back to the mock.
func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewHTTPAdapter(cfg.URL), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("summarizer URL is required for http mode")
		}
		return NewHTTPAdapter(cfg.URL), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported summarizer mode %q", cfg.Mode)
	}
}
