package contextmem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperkishore/cupido/internal/observability"
	"github.com/hyperkishore/cupido/internal/reliability"
)

var (
	ErrNotResident = errors.New("conversation context not resident")

	// ErrInvalidTurn wraps caller mistakes (bad id, role, or content) so the
	// transport layer can tell them apart from load failures.
	ErrInvalidTurn = errors.New("invalid turn")
)

// ConversationState is the durable snapshot loaded on first access to a
// conversation id.
type ConversationState struct {
	Summary       string
	SummaryTokens int
	TotalMessages int64
	TotalTokens   int64
	// RetiredMessages counts turns already folded into the summary. The store
	// uses it to keep reloaded windows disjoint from the summary: a turn is
	// either live or summarized, never both.
	RetiredMessages  int64
	LastCompactionAt time.Time
}

// Store is the narrow durable-store contract the manager depends on. Turn
// persistence itself belongs to the chat-handling layer; the manager only
// reads prior state and writes the compacted summary.
type Store interface {
	LoadConversation(ctx context.Context, conversationID string) (ConversationState, error)
	LoadRecentTurns(ctx context.Context, conversationID string, max int) ([]Turn, error)
	PersistSummary(ctx context.Context, conversationID, summary string, summaryTokens int, totalMessages, totalTokens, retiredMessages int64) error
}

// entry is the unit of concurrency: all mutation of one conversation happens
// under its mutex, including the full check-budget/compact/update/persist
// sequence.
type entry struct {
	mu sync.Mutex

	loaded           bool
	buf              *TurnBuffer
	summary          string
	summaryTokens    int
	totalMessages    int64
	totalTokens      int64
	lastCompactionAt time.Time

	// retired counts turns folded into the summary over the conversation's
	// lifetime. It is the watermark persisted to the store, counted directly
	// at each compaction rather than derived from totals, so it stays exact
	// even when durable totals lag behind the in-memory ones.
	retired int64

	// persistedMessages is the totalMessages value last durably written; when
	// the live count has moved past it, eviction flushes state first so totals
	// never regress across an evict/reload.
	persistedMessages int64

	// summaryDirty marks an in-memory summary that has not been durably
	// written yet; the write is retried on the next compaction cycle.
	summaryDirty bool

	compactFailures int
	nextCompactAt   time.Time

	lastAccess time.Time
}

// Manager owns one context per conversation id: lazy load from the durable
// store, serialized mutation per id, transparent compaction, and eviction
// after an idle period. Different conversations proceed fully in parallel.
type Manager struct {
	cfg         Config
	store       Store
	compactor   *Compactor
	metrics     *observability.Metrics
	idleTimeout time.Duration

	retryBase time.Duration
	retryCap  time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

func NewManager(cfg Config, st Store, compactor *Compactor, idleTimeout time.Duration, metrics *observability.Metrics) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Manager{
		cfg:         cfg.withDefaults(),
		store:       st,
		compactor:   compactor,
		metrics:     metrics,
		idleTimeout: idleTimeout,
		retryBase:   2 * time.Second,
		retryCap:    5 * time.Minute,
		entries:     make(map[string]*entry),
	}
}

// AddTurn appends one utterance to the conversation and, when the window
// exceeds its bounds, runs a compaction cycle. The append always succeeds
// even when compaction or persistence fails; the returned turn carries a
// provisional id until UpdateTurnID reconciles it with the store's.
func (m *Manager) AddTurn(ctx context.Context, conversationID string, role Role, content string, meta TurnMeta) (Turn, error) {
	if conversationID == "" {
		return Turn{}, fmt.Errorf("%w: conversation id is required", ErrInvalidTurn)
	}
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, role)
	}

	e := m.entryFor(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.ensureLoaded(ctx, conversationID, e); err != nil {
		return Turn{}, err
	}

	now := time.Now().UTC()
	createdAt := now
	if last, ok := e.buf.last(); ok && createdAt.Before(last.CreatedAt) {
		createdAt = last.CreatedAt
	}
	weight := meta.Weight
	if weight <= 0 {
		weight = 1.0
	}

	t := Turn{
		ID:              uuid.NewString(),
		Role:            role,
		Content:         content,
		RefTags:         meta.RefTags,
		CreatedAt:       createdAt,
		EstimatedTokens: EstimateTokens(content),
		Weight:          weight,
	}

	needed := e.buf.Append(t)
	e.totalMessages++
	e.totalTokens += int64(t.EstimatedTokens)
	e.lastAccess = now
	if m.metrics != nil {
		m.metrics.TurnsAppended.Inc()
	}

	if needed {
		if now.Before(e.nextCompactAt) {
			if m.metrics != nil {
				m.metrics.Compactions.WithLabelValues("deferred").Inc()
			}
		} else {
			m.compactLocked(ctx, conversationID, e, now)
		}
	}
	return t, nil
}

// compactLocked runs one compaction cycle under the entry lock: select the
// retirement batch, summarize it, swap the window, then persist. Turns leave
// the window only after the new summary incorporating them exists, so a
// failure at any point leaves the over-budget window intact.
func (m *Manager) compactLocked(ctx context.Context, conversationID string, e *entry, now time.Time) {
	toRetire, toKeep := e.buf.SelectForRetirement(m.cfg.OverlapTurns)
	if len(toRetire) == 0 {
		return
	}

	start := time.Now()
	newSummary, newTokens, err := m.compactor.Compact(ctx, e.summary, toRetire)
	if err != nil {
		e.compactFailures++
		e.nextCompactAt = now.Add(reliability.ExponentialBackoff(e.compactFailures-1, m.retryBase, m.retryCap))
		log.Printf("contextmem: compaction failed for %s (failure %d, window %d turns): %v",
			conversationID, e.compactFailures, e.buf.Len(), err)
		if m.metrics != nil {
			m.metrics.Compactions.WithLabelValues("failure").Inc()
		}
		return
	}

	e.compactFailures = 0
	e.nextCompactAt = time.Time{}
	e.retired += int64(len(toRetire))
	e.buf.Replace(toKeep)
	e.summary = newSummary
	e.summaryTokens = newTokens
	e.lastCompactionAt = now
	if m.metrics != nil {
		m.metrics.Compactions.WithLabelValues("success").Inc()
		m.metrics.ObserveCompactionLatency(time.Since(start))
	}

	m.persistLocked(ctx, conversationID, e)
}

func (m *Manager) persistLocked(ctx context.Context, conversationID string, e *entry) {
	err := m.store.PersistSummary(ctx, conversationID, e.summary, e.summaryTokens, e.totalMessages, e.totalTokens, e.retired)
	if err != nil {
		// In-memory state stays authoritative and internally consistent; the
		// durable copy catches up on the next successful persist.
		e.summaryDirty = true
		log.Printf("contextmem: summary persist failed for %s: %v", conversationID, err)
		if m.metrics != nil {
			m.metrics.PersistFailures.Inc()
		}
		return
	}
	e.summaryDirty = false
	e.persistedMessages = e.totalMessages
}

// Assemble returns the prompt-ready context for a conversation, loading it
// from the durable store if not resident. It serializes with any in-flight
// compaction for the same id and never observes a half-updated window.
func (m *Manager) Assemble(ctx context.Context, conversationID string) (Assembly, error) {
	if conversationID == "" {
		return Assembly{}, errors.New("conversation id is required")
	}

	e := m.entryFor(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.ensureLoaded(ctx, conversationID, e); err != nil {
		return Assembly{}, err
	}
	e.lastAccess = time.Now().UTC()

	a := AssembleContext(e.summary, e.summaryTokens, e.buf.Turns())
	if m.metrics != nil {
		m.metrics.AssemblyStrategies.WithLabelValues(string(a.Strategy)).Inc()
	}
	return a, nil
}

// UpdateTurnID reconciles a provisional turn id with the id the durable
// store assigned once that turn's persistence is confirmed. Token accounting
// is untouched. Returns false when the conversation or turn is not resident,
// which is harmless: the reload path reads store-assigned ids anyway.
func (m *Manager) UpdateTurnID(conversationID, tempID, realID string) bool {
	if tempID == "" || realID == "" || tempID == realID {
		return false
	}
	e := m.lookup(conversationID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Rename(tempID, realID)
}

// Evict drops the in-process context. State that outran the durable copy
// (an unsaved summary, or totals advanced by appends since the last persist)
// is flushed first, so the next access reloads exactly what was dropped.
func (m *Manager) Evict(conversationID string) bool {
	e := m.lookup(conversationID)
	if e == nil {
		return false
	}

	e.mu.Lock()
	if e.loaded && (e.summaryDirty || e.totalMessages > e.persistedMessages) {
		pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.persistLocked(pctx, conversationID, e)
		cancel()
	}
	e.mu.Unlock()

	m.mu.Lock()
	ok := m.entries[conversationID] == e
	if ok {
		delete(m.entries, conversationID)
	}
	active := len(m.entries)
	m.mu.Unlock()

	if ok && m.metrics != nil {
		m.metrics.Evictions.WithLabelValues("manual").Inc()
		m.metrics.ActiveContexts.Set(float64(active))
	}
	return ok
}

// Stats returns an observability snapshot for a resident conversation.
func (m *Manager) Stats(conversationID string) (Stats, error) {
	e := m.lookup(conversationID)
	if e == nil {
		return Stats{}, ErrNotResident
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return Stats{}, ErrNotResident
	}
	return Stats{
		ConversationID:   conversationID,
		RecentTurns:      e.buf.Len(),
		RecentTokens:     e.buf.Tokens(),
		SummaryTokens:    e.summaryTokens,
		TotalMessages:    e.totalMessages,
		TotalTokens:      e.totalTokens,
		LastCompactionAt: e.lastCompactionAt,
		SummaryDirty:     e.summaryDirty,
	}, nil
}

// ResidentCount returns how many contexts are currently in memory.
func (m *Manager) ResidentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartJanitor launches a goroutine that evicts contexts idle for longer
// than the configured idle timeout. Eviction is age-driven, not scheduled
// per context; the sweep interval only bounds detection latency.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.evictIdle()
			}
		}
	}()
}

func (m *Manager) evictIdle() {
	now := time.Now().UTC()

	m.mu.Lock()
	candidates := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		candidates[id] = e
	}
	m.mu.Unlock()

	for id, e := range candidates {
		// A busy entry is not idle; skip instead of blocking behind a
		// possibly in-flight compaction.
		if !e.mu.TryLock() {
			continue
		}
		idle := e.loaded && now.Sub(e.lastAccess) >= m.idleTimeout
		if idle && (e.summaryDirty || e.totalMessages > e.persistedMessages) {
			// Last chance to flush state the durable copy is missing before the
			// entry is dropped; a failure here only means it stays stale.
			pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.persistLocked(pctx, id, e)
			cancel()
		}
		if idle {
			m.mu.Lock()
			if m.entries[id] == e {
				delete(m.entries, id)
			}
			active := len(m.entries)
			m.mu.Unlock()
			if m.metrics != nil {
				m.metrics.Evictions.WithLabelValues("idle").Inc()
				m.metrics.ActiveContexts.Set(float64(active))
			}
		}
		e.mu.Unlock()
	}
}

func (m *Manager) entryFor(conversationID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[conversationID]
	if !ok {
		e = &entry{buf: NewTurnBuffer(m.cfg)}
		m.entries[conversationID] = e
		if m.metrics != nil {
			m.metrics.ActiveContexts.Set(float64(len(m.entries)))
		}
	}
	return e
}

func (m *Manager) lookup(conversationID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[conversationID]
}

// ensureLoaded pulls the durable snapshot the first time an id is touched.
// Called with the entry lock held.
func (m *Manager) ensureLoaded(ctx context.Context, conversationID string, e *entry) error {
	if e.loaded {
		return nil
	}

	state, err := m.store.LoadConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	turns, err := m.store.LoadRecentTurns(ctx, conversationID, m.cfg.MaxRecentTurns)
	if err != nil {
		return fmt.Errorf("load recent turns %s: %w", conversationID, err)
	}

	for _, t := range turns {
		e.buf.Append(t)
	}
	e.summary = state.Summary
	e.summaryTokens = state.SummaryTokens
	e.retired = state.RetiredMessages
	e.totalMessages = state.TotalMessages
	e.persistedMessages = state.TotalMessages
	// The turn log can be ahead of the last-persisted totals (totals are only
	// written with a summary flush); the watermark plus the live window is a
	// lower bound that keeps totals from regressing across a reload.
	if floor := state.RetiredMessages + int64(len(turns)); e.totalMessages < floor {
		e.totalMessages = floor
	}
	e.totalTokens = state.TotalTokens
	covered := int(state.TotalMessages - state.RetiredMessages)
	if covered < 0 {
		covered = 0
	}
	for i := covered; i < len(turns); i++ {
		e.totalTokens += int64(turns[i].EstimatedTokens)
	}
	e.lastCompactionAt = state.LastCompactionAt
	e.lastAccess = time.Now().UTC()
	e.loaded = true
	return nil
}
