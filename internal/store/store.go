package store

import (
	"context"
	"strings"

	"github.com/hyperkishore/cupido/internal/contextmem"
)

// Store is the durable conversation store: the turn log plus the compacted
// summary and lifetime totals. It satisfies the manager's narrower contract
// and additionally owns turn persistence for the chat-handling layer.
type Store interface {
	SaveTurn(ctx context.Context, conversationID string, t contextmem.Turn) (assignedID string, err error)
	LoadRecentTurns(ctx context.Context, conversationID string, max int) ([]contextmem.Turn, error)
	LoadConversation(ctx context.Context, conversationID string) (contextmem.ConversationState, error)
	PersistSummary(ctx context.Context, conversationID, summary string, summaryTokens int, totalMessages, totalTokens, retiredMessages int64) error
	Close() error
}

// New creates a postgres-backed store when configured, otherwise in-memory.
func New(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
