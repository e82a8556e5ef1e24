package contextmem

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world!", 3},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestEstimateTokensCountsRunesNotBytes(t *testing.T) {
	// 5 runes, 7 bytes; the estimate follows runes.
	if got := EstimateTokens("héllö"); got != 2 {
		t.Fatalf("EstimateTokens = %d, want 2", got)
	}
}

func TestEstimateTokensDeterministic(t *testing.T) {
	text := "the same input must always cost the same"
	first := EstimateTokens(text)
	for i := 0; i < 100; i++ {
		if got := EstimateTokens(text); got != first {
			t.Fatalf("EstimateTokens changed between calls: %d then %d", first, got)
		}
	}
}
