package summarizer

import (
	"context"
	"strings"
	"testing"
)

func TestNewAdapterModes(t *testing.T) {
	if _, err := NewAdapter(Config{Mode: "http"}); err == nil {
		t.Fatalf("http mode without URL should fail")
	}
	if _, err := NewAdapter(Config{Mode: "teleport"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}

	a, err := NewAdapter(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewAdapter(auto) error = %v", err)
	}
	if _, ok := a.(*MockAdapter); !ok {
		t.Fatalf("auto without URL = %T, want *MockAdapter", a)
	}

	a, err = NewAdapter(Config{Mode: "auto", URL: "http://localhost:9/summarize"})
	if err != nil {
		t.Fatalf("NewAdapter(auto+url) error = %v", err)
	}
	if _, ok := a.(*HTTPAdapter); !ok {
		t.Fatalf("auto with URL = %T, want *HTTPAdapter", a)
	}
}

func TestMockAdapterCondensesDeterministically(t *testing.T) {
	m := NewMockAdapter()
	req := Request{
		PriorSummary: "They had met before.",
		Turns: []string{
			"user: I got the job! So excited to tell you.",
			"assistant: That's wonderful news. When do you start?",
		},
		MaxChars: 200,
	}

	first, err := m.Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	second, _ := m.Summarize(context.Background(), req)
	if first != second {
		t.Fatalf("mock must be deterministic:\n%q\n%q", first, second)
	}
	if !strings.Contains(first, "They had met before.") {
		t.Fatalf("mock dropped the prior summary: %q", first)
	}
	if !strings.Contains(first, "I got the job!") {
		t.Fatalf("mock dropped the first sentence of a turn: %q", first)
	}
}

func TestMockAdapterHonorsBudget(t *testing.T) {
	m := NewMockAdapter()
	req := Request{
		Turns:    []string{"user: " + strings.Repeat("words without any stop ", 30)},
		MaxChars: 64,
	}
	out, err := m.Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(out) > 64 {
		t.Fatalf("output length = %d, want <= 64", len(out))
	}
}
