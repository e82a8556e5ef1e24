package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperkishore/cupido/internal/contextmem"
)

// PostgresStore persists the conversation turn log and compacted summaries
// in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ref_tags TEXT[] NOT NULL DEFAULT '{}',
			weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			estimated_tokens INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_conv_created
			ON conversation_turns (conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS conversation_state (
			conversation_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL DEFAULT '',
			summary_tokens INTEGER NOT NULL DEFAULT 0,
			total_messages BIGINT NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			retired_messages BIGINT NOT NULL DEFAULT 0,
			last_compaction_at TIMESTAMPTZ
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, conversationID string, t contextmem.Turn) (string, error) {
	id := uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	refTags := t.RefTags
	if refTags == nil {
		refTags = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, conversation_id, role, content, ref_tags, weight, estimated_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id,
		conversationID,
		string(t.Role),
		t.Content,
		refTags,
		t.Weight,
		t.EstimatedTokens,
		t.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save turn: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) LoadRecentTurns(ctx context.Context, conversationID string, max int) ([]contextmem.Turn, error) {
	if max <= 0 {
		max = 10
	}

	var logged, retired int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM conversation_turns WHERE conversation_id=$1`,
		conversationID,
	).Scan(&logged)
	if err != nil {
		return nil, fmt.Errorf("count turns: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`SELECT retired_messages FROM conversation_state WHERE conversation_id=$1`,
		conversationID,
	).Scan(&retired)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("query retired watermark: %w", err)
	}

	// Only turns past the retirement watermark are live; the rest are already
	// reflected in the summary.
	live := logged - retired
	if live <= 0 {
		return nil, nil
	}
	if int64(max) > live {
		max = int(live)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, ref_tags, weight, estimated_tokens, created_at
		 FROM conversation_turns WHERE conversation_id=$1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		conversationID,
		max,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	items := make([]contextmem.Turn, 0, max)
	for rows.Next() {
		var t contextmem.Turn
		var role string
		if err := rows.Scan(&t.ID, &role, &t.Content, &t.RefTags, &t.Weight, &t.EstimatedTokens, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = contextmem.Role(role)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) LoadConversation(ctx context.Context, conversationID string) (contextmem.ConversationState, error) {
	var (
		state       contextmem.ConversationState
		compactedAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT summary, summary_tokens, total_messages, total_tokens, retired_messages, last_compaction_at
		 FROM conversation_state WHERE conversation_id=$1`,
		conversationID,
	).Scan(&state.Summary, &state.SummaryTokens, &state.TotalMessages, &state.TotalTokens, &state.RetiredMessages, &compactedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return contextmem.ConversationState{}, nil
	}
	if err != nil {
		return contextmem.ConversationState{}, fmt.Errorf("load conversation: %w", err)
	}
	if compactedAt != nil {
		state.LastCompactionAt = *compactedAt
	}
	return state, nil
}

func (s *PostgresStore) PersistSummary(ctx context.Context, conversationID, summary string, summaryTokens int, totalMessages, totalTokens, retiredMessages int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_state (conversation_id, summary, summary_tokens, total_messages, total_tokens, retired_messages, last_compaction_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (conversation_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			summary_tokens = EXCLUDED.summary_tokens,
			total_messages = EXCLUDED.total_messages,
			total_tokens = EXCLUDED.total_tokens,
			retired_messages = EXCLUDED.retired_messages,
			last_compaction_at = EXCLUDED.last_compaction_at`,
		conversationID,
		summary,
		summaryTokens,
		totalMessages,
		totalTokens,
		retiredMessages,
	)
	if err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
