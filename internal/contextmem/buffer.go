package contextmem

// TurnBuffer holds one conversation's live window: ordered turns, newest
// last, plus a running token sum. It only detects when compaction is needed;
// acting on that is the manager's job.
type TurnBuffer struct {
	cfg    Config
	turns  []Turn
	tokens int
}

// NewTurnBuffer creates an empty window bounded by cfg.
func NewTurnBuffer(cfg Config) *TurnBuffer {
	return &TurnBuffer{cfg: cfg.withDefaults()}
}

// Append adds a turn to the tail and reports whether the window now exceeds
// either its turn-count bound or its token budget.
func (b *TurnBuffer) Append(t Turn) bool {
	b.turns = append(b.turns, t)
	b.tokens += t.EstimatedTokens
	return len(b.turns) > b.cfg.MaxRecentTurns || b.tokens > b.cfg.MaxTokensBeforeCompaction
}

// SelectForRetirement splits the window into the turns to retire and the
// trailing overlap to keep. The overlap is clamped to at least one turn for a
// non-empty window so the assembled context never starts mid-thought.
func (b *TurnBuffer) SelectForRetirement(overlap int) (toRetire, toKeep []Turn) {
	if len(b.turns) == 0 {
		return nil, nil
	}
	if overlap < 1 {
		overlap = 1
	}
	if overlap >= len(b.turns) {
		return nil, b.snapshot()
	}
	cut := len(b.turns) - overlap
	toRetire = make([]Turn, cut)
	copy(toRetire, b.turns[:cut])
	toKeep = make([]Turn, overlap)
	copy(toKeep, b.turns[cut:])
	return toRetire, toKeep
}

// Replace installs the post-compaction window and recomputes the token sum.
func (b *TurnBuffer) Replace(keep []Turn) {
	b.turns = append(b.turns[:0], keep...)
	b.tokens = 0
	for _, t := range keep {
		b.tokens += t.EstimatedTokens
	}
}

// Len returns the number of live turns.
func (b *TurnBuffer) Len() int { return len(b.turns) }

// Tokens returns the running token sum of the live window.
func (b *TurnBuffer) Tokens() int { return b.tokens }

func (b *TurnBuffer) snapshot() []Turn {
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Turns returns a copy of the live window, oldest first.
func (b *TurnBuffer) Turns() []Turn { return b.snapshot() }

// Rename swaps a turn's id in place. Used to reconcile provisional ids with
// store-assigned ones; token accounting is unaffected.
func (b *TurnBuffer) Rename(oldID, newID string) bool {
	for i := range b.turns {
		if b.turns[i].ID == oldID {
			b.turns[i].ID = newID
			return true
		}
	}
	return false
}

func (b *TurnBuffer) last() (Turn, bool) {
	if len(b.turns) == 0 {
		return Turn{}, false
	}
	return b.turns[len(b.turns)-1], true
}
