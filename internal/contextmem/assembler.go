package contextmem

import (
	"fmt"
	"strings"
)

// Strategy tier thresholds over the estimated total token count.
const (
	fullStrategyCeiling       = 1000
	summarizedStrategyCeiling = 3000
)

const priorContextLabel = "[Earlier conversation context]"

// AssembleContext builds the prompt-ready payload from a summary and the live
// window: a labeled prior-context block plus the recent messages, with
// reference tags rendered inline. The strategy tier is advisory only.
func AssembleContext(summary string, summaryTokens int, turns []Turn) Assembly {
	a := Assembly{
		RecentMessages: make([]Message, 0, len(turns)),
	}

	if summary != "" {
		a.SummaryText = priorContextLabel + "\n" + summary
	}

	total := summaryTokens
	for _, t := range turns {
		a.RecentMessages = append(a.RecentMessages, Message{
			Role:    t.Role,
			Content: renderTurnContent(t),
		})
		total += t.EstimatedTokens
	}
	a.EstimatedTotalTokens = total

	switch {
	case total < fullStrategyCeiling:
		a.Strategy = StrategyFull
	case total < summarizedStrategyCeiling:
		a.Strategy = StrategySummarized
	default:
		a.Strategy = StrategyMinimal
	}
	return a
}

func renderTurnContent(t Turn) string {
	if len(t.RefTags) == 0 {
		return t.Content
	}
	var sb strings.Builder
	for _, tag := range t.RefTags {
		fmt.Fprintf(&sb, "[%s] ", tag)
	}
	sb.WriteString(t.Content)
	return sb.String()
}
