package contextmem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperkishore/cupido/internal/summarizer"
)

const (
	// maxTurnPromptChars caps how much of a single turn's content enters the
	// summarization prompt, so one oversized turn cannot dominate it. Turns
	// appended with weight below 1.0 get half this ceiling.
	maxTurnPromptChars = 2000

	defaultSummarizeTimeout = 20 * time.Second
)

const summaryInstruction = `Condense the conversation below into a short narrative. Preserve: topics discussed and decisions made, what you know about the user's situation and preferences, the emotional tone and relationship dynamic, and any open threads. Write plain prose, no preamble, no headings.`

// boilerplatePrefixes are provider lead-ins stripped from summaries before
// truncation.
var boilerplatePrefixes = []string{
	"summary:",
	"here is a summary:",
	"here's a summary:",
	"here is the summary:",
	"here's the summary:",
	"conversation summary:",
	"updated summary:",
}

// Compactor condenses retired turns plus the prior summary into a new
// summary bounded by the configured token budget.
type Compactor struct {
	cfg     Config
	llm     summarizer.Adapter
	timeout time.Duration
}

// NewCompactor builds a compaction engine. A zero timeout falls back to a
// conservative default; the timeout bounds every provider call.
func NewCompactor(cfg Config, llm summarizer.Adapter, timeout time.Duration) *Compactor {
	if timeout <= 0 {
		timeout = defaultSummarizeTimeout
	}
	return &Compactor{cfg: cfg.withDefaults(), llm: llm, timeout: timeout}
}

// Compact produces the summary that replaces the retired turns. On any
// provider failure it returns an error and no state is touched: the caller
// keeps the live window intact and retries on a later append.
func (c *Compactor) Compact(ctx context.Context, priorSummary string, toRetire []Turn) (summary string, tokens int, err error) {
	if len(toRetire) == 0 {
		return priorSummary, EstimateTokens(priorSummary), nil
	}

	charBudget := c.cfg.MaxSummaryTokens * charsPerToken
	req := summarizer.Request{
		Instruction:  summaryInstruction,
		PriorSummary: priorSummary,
		Turns:        renderTurnsForPrompt(toRetire),
		MaxChars:     charBudget,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.Summarize(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("summarize %d turns: %w", len(toRetire), err)
	}

	final := truncateAtSentence(stripBoilerplate(raw), charBudget)
	if final == "" {
		return "", 0, fmt.Errorf("summarize %d turns: provider returned empty summary", len(toRetire))
	}
	return final, EstimateTokens(final), nil
}

func renderTurnsForPrompt(turns []Turn) []string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		ceiling := maxTurnPromptChars
		if t.Weight > 0 && t.Weight < 1 {
			ceiling /= 2
		}
		content := t.Content
		if runes := []rune(content); len(runes) > ceiling {
			content = string(runes[:ceiling])
		}
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, content))
	}
	return lines
}

func stripBoilerplate(s string) string {
	s = strings.TrimSpace(s)
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(s)
		for _, prefix := range boilerplatePrefixes {
			if strings.HasPrefix(lower, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				changed = true
				break
			}
		}
	}
	return s
}

// truncateAtSentence hard-truncates s to at most budget runes, preferring to
// cut at a sentence boundary when one falls in the last 20% of the budget.
func truncateAtSentence(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}

	cut := -1
	floor := budget * 4 / 5
	for i := budget - 1; i >= floor; i-- {
		if r := runes[i]; r == '.' || r == '!' || r == '?' {
			cut = i + 1
			break
		}
	}
	if cut == -1 {
		// No sentence boundary near the edge; prefer a word break, else cut hard.
		cut = budget
		for i := budget - 1; i >= floor; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
	}
	return strings.TrimSpace(string(runes[:cut]))
}
