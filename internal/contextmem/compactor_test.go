package contextmem

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hyperkishore/cupido/internal/summarizer"
)

// fakeSummarizer records requests and replies with a canned function, failing
// the first failFirst calls.
type fakeSummarizer struct {
	mu        sync.Mutex
	requests  []summarizer.Request
	failFirst int
	reply     func(req summarizer.Request) string
}

func (f *fakeSummarizer) Summarize(_ context.Context, req summarizer.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.requests) <= f.failFirst {
		return "", errors.New("provider unavailable")
	}
	if f.reply != nil {
		return f.reply(req), nil
	}
	return "They talked about plans and got along well.", nil
}

func (f *fakeSummarizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSummarizer) lastRequest() summarizer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeSummarizer) allRequests() []summarizer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]summarizer.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func testConfig() Config {
	return Config{MaxRecentTurns: 4, MaxTokensBeforeCompaction: 1000, MaxSummaryTokens: 50, OverlapTurns: 1}
}

func TestCompactSendsPriorSummaryAndAllTurns(t *testing.T) {
	fake := &fakeSummarizer{}
	c := NewCompactor(testConfig(), fake, time.Second)

	turns := []Turn{
		{Role: RoleUser, Content: "do you like hiking?", Weight: 1},
		{Role: RoleAssistant, Content: "I love it, especially in autumn.", Weight: 1},
	}
	_, _, err := c.Compact(context.Background(), "prior narrative", turns)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}

	req := fake.lastRequest()
	if req.PriorSummary != "prior narrative" {
		t.Fatalf("prior summary = %q", req.PriorSummary)
	}
	if len(req.Turns) != 2 {
		t.Fatalf("turns sent = %d, want 2", len(req.Turns))
	}
	if !strings.HasPrefix(req.Turns[0], "user: ") || !strings.Contains(req.Turns[0], "hiking") {
		t.Fatalf("first turn line = %q", req.Turns[0])
	}
	if req.MaxChars != 50*charsPerToken {
		t.Fatalf("MaxChars = %d, want %d", req.MaxChars, 50*charsPerToken)
	}
}

func TestCompactStripsBoilerplateAndRecountsTokens(t *testing.T) {
	fake := &fakeSummarizer{reply: func(summarizer.Request) string {
		return "Here is a summary: They planned a trip."
	}}
	c := NewCompactor(testConfig(), fake, time.Second)

	got, tokens, err := c.Compact(context.Background(), "", []Turn{{Role: RoleUser, Content: "hi", Weight: 1}})
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if got != "They planned a trip." {
		t.Fatalf("summary = %q", got)
	}
	if want := EstimateTokens(got); tokens != want {
		t.Fatalf("tokens = %d, want %d", tokens, want)
	}
}

func TestCompactTruncatesAtSentenceBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSummaryTokens = 10 // 40 char budget
	long := strings.Repeat("a", 34) + ". " + strings.Repeat("b", 30)
	fake := &fakeSummarizer{reply: func(summarizer.Request) string { return long }}
	c := NewCompactor(cfg, fake, time.Second)

	got, tokens, err := c.Compact(context.Background(), "", []Turn{{Role: RoleUser, Content: "hi", Weight: 1}})
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if want := strings.Repeat("a", 34) + "."; got != want {
		t.Fatalf("summary = %q, want cut at the sentence boundary", got)
	}
	if tokens > cfg.MaxSummaryTokens {
		t.Fatalf("tokens = %d exceeds budget %d", tokens, cfg.MaxSummaryTokens)
	}
}

func TestCompactHardTruncatesWithoutBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSummaryTokens = 10
	fake := &fakeSummarizer{reply: func(summarizer.Request) string {
		return strings.Repeat("x", 200)
	}}
	c := NewCompactor(cfg, fake, time.Second)

	got, tokens, err := c.Compact(context.Background(), "", []Turn{{Role: RoleUser, Content: "hi", Weight: 1}})
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if len(got) != 40 {
		t.Fatalf("summary length = %d, want 40", len(got))
	}
	if tokens != cfg.MaxSummaryTokens {
		t.Fatalf("tokens = %d, want %d", tokens, cfg.MaxSummaryTokens)
	}
}

func TestCompactCapsOversizedTurnContent(t *testing.T) {
	fake := &fakeSummarizer{}
	c := NewCompactor(testConfig(), fake, time.Second)

	huge := strings.Repeat("z", maxTurnPromptChars*3)
	_, _, err := c.Compact(context.Background(), "", []Turn{{Role: RoleUser, Content: huge, Weight: 1}})
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	line := fake.lastRequest().Turns[0]
	if len(line) > maxTurnPromptChars+len("user: ") {
		t.Fatalf("turn line length = %d, want capped at the prompt ceiling", len(line))
	}
}

func TestCompactHalvesCeilingForLowWeightTurns(t *testing.T) {
	fake := &fakeSummarizer{}
	c := NewCompactor(testConfig(), fake, time.Second)

	huge := strings.Repeat("z", maxTurnPromptChars*3)
	_, _, err := c.Compact(context.Background(), "", []Turn{{Role: RoleUser, Content: huge, Weight: 0.5}})
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	line := fake.lastRequest().Turns[0]
	if len(line) > maxTurnPromptChars/2+len("user: ") {
		t.Fatalf("low weight turn line length = %d, want half ceiling", len(line))
	}
}

func TestCompactCapsOversizedTurnOnRuneBoundary(t *testing.T) {
	fake := &fakeSummarizer{}
	c := NewCompactor(testConfig(), fake, time.Second)

	huge := strings.Repeat("é", maxTurnPromptChars+50)
	_, _, err := c.Compact(context.Background(), "", []Turn{{Role: RoleUser, Content: huge, Weight: 1}})
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	line := fake.lastRequest().Turns[0]
	if !utf8.ValidString(line) {
		t.Fatalf("capped turn line is not valid UTF-8")
	}
	if got := utf8.RuneCountInString(line); got > maxTurnPromptChars+len("user: ") {
		t.Fatalf("turn line = %d runes, want capped at the prompt ceiling", got)
	}
}

func TestCompactPropagatesProviderFailure(t *testing.T) {
	fake := &fakeSummarizer{failFirst: 1}
	c := NewCompactor(testConfig(), fake, time.Second)

	_, _, err := c.Compact(context.Background(), "prior", []Turn{{Role: RoleUser, Content: "hi", Weight: 1}})
	if err == nil {
		t.Fatalf("Compact() should surface provider failure")
	}
}

func TestCompactRejectsEmptyProviderOutput(t *testing.T) {
	fake := &fakeSummarizer{reply: func(summarizer.Request) string { return "  " }}
	c := NewCompactor(testConfig(), fake, time.Second)

	if _, _, err := c.Compact(context.Background(), "", []Turn{{Role: RoleUser, Content: "hi", Weight: 1}}); err == nil {
		t.Fatalf("Compact() should reject an empty summary")
	}
}

func TestCompactNoTurnsKeepsPriorSummary(t *testing.T) {
	fake := &fakeSummarizer{}
	c := NewCompactor(testConfig(), fake, time.Second)

	got, tokens, err := c.Compact(context.Background(), "prior", nil)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if got != "prior" || tokens != EstimateTokens("prior") {
		t.Fatalf("got %q/%d, want prior summary untouched", got, tokens)
	}
	if fake.calls() != 0 {
		t.Fatalf("provider called %d times for an empty batch", fake.calls())
	}
}
