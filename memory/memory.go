// Package memory implements the two-tier Memory Store: a short-term
// FIFO ring of recent turns plus a long-term SQLite-backed store with
// in-process cosine recall.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/store/sqlite"
)

// Summarizer is the subset of model.Router needed to compress working
// memory into a rolling summary and to embed long-term memory text.
type Summarizer interface {
	Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ShortTerm is an in-memory FIFO ring of recent {goal, reply} pairs
// plus an optional rolling summary and emotional-state label.
type ShortTerm struct {
	mu        sync.Mutex
	capacity  int
	turns     []apitypes.ConversationTurn
	summary   string
	emotional string
	model     Summarizer
}

// NewShortTerm builds a ShortTerm buffer holding at most capacity turns.
func NewShortTerm(capacity int, model Summarizer) *ShortTerm {
	if capacity <= 0 {
		capacity = 20
	}
	return &ShortTerm{capacity: capacity, model: model}
}

// Add appends a turn, evicting the oldest once capacity is exceeded.
func (s *ShortTerm) Add(turn apitypes.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	if len(s.turns) > s.capacity {
		s.turns = s.turns[len(s.turns)-s.capacity:]
	}
}

// WorkingMemory returns a snapshot of the current turn list, summary,
// and emotional state.
func (s *ShortTerm) WorkingMemory() apitypes.WorkingMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]apitypes.ConversationTurn, len(s.turns))
	copy(turns, s.turns)
	return apitypes.WorkingMemory{Turns: turns, Summary: s.summary, Emotional: s.emotional}
}

// SetEmotional records the current emotional-state label, as surfaced
// by a perception/reflex module.
func (s *ShortTerm) SetEmotional(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emotional = label
}

// UpdateSummary compresses the current turn history into a rolling
// summary via the Model Router. A no-op when no turns are buffered or
// no model is configured.
func (s *ShortTerm) UpdateSummary(ctx context.Context) error {
	if s.model == nil {
		return nil
	}
	s.mu.Lock()
	if len(s.turns) == 0 {
		s.mu.Unlock()
		return nil
	}
	prompt := renderSummaryPrompt(s.turns, s.summary)
	s.mu.Unlock()

	summary, err := s.model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: "Summarize the conversation so far in two or three sentences."},
		{Role: model.RoleUser, Content: prompt},
	}, 0.2, 256)
	if err != nil {
		return agierr.Wrap(agierr.KindTransientModel, "memory: update summary", agierr.FromError(err))
	}

	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()
	return nil
}

func renderSummaryPrompt(turns []apitypes.ConversationTurn, priorSummary string) string {
	var sb []byte
	if priorSummary != "" {
		sb = append(sb, "Prior summary: "...)
		sb = append(sb, priorSummary...)
		sb = append(sb, '\n')
	}
	for _, t := range turns {
		sb = append(sb, "goal: "...)
		sb = append(sb, t.Goal...)
		sb = append(sb, " | reply: "...)
		sb = append(sb, t.Result...)
		sb = append(sb, '\n')
	}
	return string(sb)
}

// LongTerm is the SQLite-backed persistent memory store with
// in-process cosine recall.
type LongTerm struct {
	db    *sqlite.DB
	model Summarizer
}

// NewLongTerm builds a LongTerm store over db, embedding text through model.
func NewLongTerm(db *sqlite.DB, model Summarizer) *LongTerm {
	return &LongTerm{db: db, model: model}
}

// Store embeds text and inserts it as a new long-term memory entry.
func (l *LongTerm) Store(ctx context.Context, text string, metadata map[string]any) (int64, error) {
	var vec []float32
	if l.model != nil {
		v, err := l.model.Embed(ctx, text)
		if err != nil && !agierr.IsKind(err, agierr.KindConfiguration) {
			return 0, agierr.Wrap(agierr.KindTransientModel, "memory: embed", agierr.FromError(err))
		}
		vec = v
	}
	id, err := l.db.InsertMemory(ctx, text, vec, metadata)
	if err != nil {
		return 0, agierr.Wrap(agierr.KindFatalSystem, "memory: insert", agierr.FromError(err))
	}
	return id, nil
}

// Recall embeds query, loads every stored vector, computes cosine
// similarity in-process, and returns the top limit entries scoring
// above minRelevance.
func (l *LongTerm) Recall(ctx context.Context, query string, limit int, minRelevance float64) ([]apitypes.MemoryEntry, error) {
	if l.model == nil {
		return nil, nil
	}
	qvec, err := l.model.Embed(ctx, query)
	if err != nil {
		if agierr.IsKind(err, agierr.KindConfiguration) {
			return nil, nil
		}
		return nil, agierr.Wrap(agierr.KindTransientModel, "memory: embed query", agierr.FromError(err))
	}

	all, err := l.db.AllMemories(ctx)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindFatalSystem, "memory: load entries", agierr.FromError(err))
	}

	type scored struct {
		entry apitypes.MemoryEntry
		score float64
	}
	var ranked []scored
	for _, e := range all {
		if len(e.Embedding) == 0 {
			continue
		}
		score := cosine(qvec, e.Embedding)
		if score >= minRelevance {
			ranked = append(ranked, scored{entry: e, score: score})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if limit <= 0 {
		limit = 5
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]apitypes.MemoryEntry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out, nil
}

// Delete removes the memory row with the given id.
func (l *LongTerm) Delete(ctx context.Context, id int64) error {
	if err := l.db.DeleteMemory(ctx, id); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "memory: delete", agierr.FromError(err))
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		normA += da * da
		normB += db * db
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
