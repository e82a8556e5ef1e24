package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperkishore/cupido/internal/contextmem"
)

// InMemoryStore is a simple in-process conversation store for local/dev use
// and tests. It mirrors the postgres store's contract, including authoritative
// id assignment on save.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]contextmem.Turn
	state map[string]contextmem.ConversationState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns: make(map[string][]contextmem.Turn),
		state: make(map[string]contextmem.ConversationState),
	}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, conversationID string, t contextmem.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.turns[conversationID] = append(s.turns[conversationID], t)
	return t.ID, nil
}

func (s *InMemoryStore) LoadRecentTurns(_ context.Context, conversationID string, max int) ([]contextmem.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[conversationID]
	live := len(arr) - int(s.state[conversationID].RetiredMessages)
	if live <= 0 {
		return nil, nil
	}
	if max <= 0 || max > live {
		max = live
	}
	out := make([]contextmem.Turn, max)
	copy(out, arr[len(arr)-max:])
	return out, nil
}

func (s *InMemoryStore) LoadConversation(_ context.Context, conversationID string) (contextmem.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[conversationID], nil
}

func (s *InMemoryStore) PersistSummary(_ context.Context, conversationID, summary string, summaryTokens int, totalMessages, totalTokens, retiredMessages int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[conversationID] = contextmem.ConversationState{
		Summary:          summary,
		SummaryTokens:    summaryTokens,
		TotalMessages:    totalMessages,
		TotalTokens:      totalTokens,
		RetiredMessages:  retiredMessages,
		LastCompactionAt: time.Now().UTC(),
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
