package contextmem

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the window accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single utterance in a conversation. EstimatedTokens is computed
// once at append time and never recomputed, so budget math stays stable even
// if the heuristic changes between releases.
type Turn struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	RefTags         []string  `json:"ref_tags,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	EstimatedTokens int       `json:"estimated_tokens"`
	Weight          float64   `json:"weight"`
}

// TurnMeta carries optional caller-supplied attributes for a new turn.
type TurnMeta struct {
	// RefTags reference attached media; they are rendered inline before the
	// turn text at assembly time and do not change token accounting.
	RefTags []string
	// Weight below 1.0 marks the turn as lower priority: its content is
	// truncated more aggressively when included in a summarization prompt.
	// Zero means the default of 1.0.
	Weight float64
}

// Config bounds one conversation's live window and summary. Defaults are
// process-wide; each context gets its own copy.
type Config struct {
	MaxRecentTurns            int
	MaxTokensBeforeCompaction int
	MaxSummaryTokens          int
	OverlapTurns              int
}

// DefaultConfig returns the process-wide window defaults.
func DefaultConfig() Config {
	return Config{
		MaxRecentTurns:            12,
		MaxTokensBeforeCompaction: 2000,
		MaxSummaryTokens:          300,
		OverlapTurns:              2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRecentTurns <= 0 {
		c.MaxRecentTurns = d.MaxRecentTurns
	}
	if c.MaxTokensBeforeCompaction <= 0 {
		c.MaxTokensBeforeCompaction = d.MaxTokensBeforeCompaction
	}
	if c.MaxSummaryTokens <= 0 {
		c.MaxSummaryTokens = d.MaxSummaryTokens
	}
	if c.OverlapTurns <= 0 {
		c.OverlapTurns = d.OverlapTurns
	}
	return c
}

// Strategy is advisory metadata telling the caller how much context is in
// play; the assembler itself never branches on it.
type Strategy string

const (
	StrategyFull       Strategy = "full"
	StrategySummarized Strategy = "summarized"
	StrategyMinimal    Strategy = "minimal"
)

// Message is one prompt-ready entry of an assembly.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Assembly is the prompt-ready view of a conversation: the compacted prior
// context plus the live window. Derived on every call, never stored.
type Assembly struct {
	SummaryText          string    `json:"summary_text"`
	RecentMessages       []Message `json:"recent_messages"`
	EstimatedTotalTokens int       `json:"estimated_total_tokens"`
	Strategy             Strategy  `json:"strategy"`
}

// Stats is a read-only observability snapshot of one resident conversation.
type Stats struct {
	ConversationID   string    `json:"conversation_id"`
	RecentTurns      int       `json:"recent_turns"`
	RecentTokens     int       `json:"recent_tokens"`
	SummaryTokens    int       `json:"summary_tokens"`
	TotalMessages    int64     `json:"total_messages"`
	TotalTokens      int64     `json:"total_tokens"`
	LastCompactionAt time.Time `json:"last_compaction_at,omitzero"`
	SummaryDirty     bool      `json:"summary_dirty"`
}
