package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperkishore/cupido/internal/contextmem"
)

func TestFactoryDefaultsToInMemory(t *testing.T) {
	st, err := New(context.Background(), "  ")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer st.Close()
	if _, ok := st.(*InMemoryStore); !ok {
		t.Fatalf("New() = %T, want *InMemoryStore for empty database URL", st)
	}
}

func TestSaveTurnAssignsAuthoritativeID(t *testing.T) {
	st := NewInMemoryStore()
	id, err := st.SaveTurn(context.Background(), "c1", contextmem.Turn{ID: "provisional", Role: contextmem.RoleUser, Content: "hi", EstimatedTokens: 1})
	if err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}
	if id == "" || id == "provisional" {
		t.Fatalf("assigned id = %q, want a fresh store id", id)
	}

	turns, err := st.LoadRecentTurns(context.Background(), "c1", 10)
	if err != nil {
		t.Fatalf("LoadRecentTurns() error = %v", err)
	}
	if len(turns) != 1 || turns[0].ID != id {
		t.Fatalf("reloaded turns = %+v, want the assigned id", turns)
	}
}

func TestLoadRecentTurnsHonorsLimitAndOrder(t *testing.T) {
	st := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		if _, err := st.SaveTurn(context.Background(), "c1", contextmem.Turn{Role: contextmem.RoleUser, Content: fmt.Sprintf("m%d", i), EstimatedTokens: 1}); err != nil {
			t.Fatalf("SaveTurn(%d) error = %v", i, err)
		}
	}

	turns, err := st.LoadRecentTurns(context.Background(), "c1", 3)
	if err != nil {
		t.Fatalf("LoadRecentTurns() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len = %d, want 3", len(turns))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if turns[i].Content != want {
			t.Fatalf("turn %d = %q, want %q (chronological order)", i, turns[i].Content, want)
		}
	}
}

func TestLoadRecentTurnsExcludesRetired(t *testing.T) {
	st := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		if _, err := st.SaveTurn(context.Background(), "c1", contextmem.Turn{Role: contextmem.RoleUser, Content: fmt.Sprintf("m%d", i), EstimatedTokens: 1}); err != nil {
			t.Fatalf("SaveTurn(%d) error = %v", i, err)
		}
	}
	if err := st.PersistSummary(context.Background(), "c1", "compacted", 2, 5, 5, 4); err != nil {
		t.Fatalf("PersistSummary() error = %v", err)
	}

	turns, err := st.LoadRecentTurns(context.Background(), "c1", 10)
	if err != nil {
		t.Fatalf("LoadRecentTurns() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "m4" {
		t.Fatalf("live turns = %+v, want only the unretired tail", turns)
	}
}

func TestLoadConversationRoundTrip(t *testing.T) {
	st := NewInMemoryStore()

	state, err := st.LoadConversation(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	if state.Summary != "" || state.TotalMessages != 0 {
		t.Fatalf("missing conversation should load as zero state, got %+v", state)
	}

	if err := st.PersistSummary(context.Background(), "c1", "a summary", 3, 12, 600, 10); err != nil {
		t.Fatalf("PersistSummary() error = %v", err)
	}
	state, err = st.LoadConversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	if state.Summary != "a summary" || state.SummaryTokens != 3 || state.TotalMessages != 12 || state.TotalTokens != 600 || state.RetiredMessages != 10 {
		t.Fatalf("state = %+v", state)
	}
	if state.LastCompactionAt.IsZero() {
		t.Fatalf("LastCompactionAt should be set on persist")
	}
}

func TestPersistSummaryOverwrites(t *testing.T) {
	st := NewInMemoryStore()
	if err := st.PersistSummary(context.Background(), "c1", "first", 1, 2, 20, 1); err != nil {
		t.Fatalf("PersistSummary() error = %v", err)
	}
	if err := st.PersistSummary(context.Background(), "c1", "second", 2, 4, 40, 3); err != nil {
		t.Fatalf("PersistSummary() error = %v", err)
	}
	state, _ := st.LoadConversation(context.Background(), "c1")
	if state.Summary != "second" || state.RetiredMessages != 3 {
		t.Fatalf("state = %+v, want the second write", state)
	}
}
