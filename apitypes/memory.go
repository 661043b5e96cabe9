package apitypes

// EmbeddingRecord associates a named entity (skill or perception module)
// with a fixed-length embedding vector. Persisted as an opaque blob of
// 4*dim bytes (packed little-endian float32).
type EmbeddingRecord struct {
	Name   string    `json:"name"`
	Vector []float32 `json:"vector"`
}

// MemoryEntry is a long-term memory record: immutable once stored, save
// for explicit deletion by id.
type MemoryEntry struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// ConversationTurn is one entry in the short-term dialogue ring.
type ConversationTurn struct {
	Goal      string `json:"goal"`
	Result    string `json:"result"`
	Timestamp int64  `json:"timestamp"`
}

// WorkingMemory is the short-term context handed to the Planner: recent
// turns, an optional rolling summary, and an emotional-state label
// contributed by the Perception layer.
type WorkingMemory struct {
	Turns     []ConversationTurn `json:"turns"`
	Summary   string             `json:"summary,omitempty"`
	Emotional string             `json:"emotional_state,omitempty"`
}

// SkillConfigEntry is a skill name paired with its opaque persisted config.
type SkillConfigEntry struct {
	SkillName string         `json:"skill_name"`
	Config    map[string]any `json:"config"`
}

// NotableInfoEntry is a durable key/value fact surfaced into planning context.
type NotableInfoEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// SkillRequestStatus is the lifecycle state of a SkillRequestLogEntry.
type SkillRequestStatus string

const (
	SkillRequestPending    SkillRequestStatus = "pending"
	SkillRequestFoundRemote SkillRequestStatus = "found_remote"
	SkillRequestCreated    SkillRequestStatus = "created"
	SkillRequestFailed     SkillRequestStatus = "failed"
)

// SkillRequestLogEntry tracks a query for which no skill could be found,
// consumed by the background skill-review cycle.
type SkillRequestLogEntry struct {
	Query       string             `json:"query"`
	Count       int                `json:"count"`
	Status      SkillRequestStatus `json:"status"`
	LastUpdated int64              `json:"last_updated"`
}

// PerceptionMetadata describes a registered sensing module, mirroring
// SkillMetadata's retrieval facets.
type PerceptionMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	SubCategory string `json:"sub_category,omitempty"`
	Type        string `json:"type"`
	Version     string `json:"version,omitempty"`
	Enabled     bool   `json:"enabled"`
	LastUpdated int64  `json:"last_updated"`
}

// ReflexMetadata describes a registered reflex module: an
// if-trigger-then-plan unit that runs independent of the Planner until
// an event fires it.
type ReflexMetadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	TriggerType string         `json:"trigger_type"`
	Version     string         `json:"version,omitempty"`
	ConfigSchema map[string]any `json:"config_schema,omitempty"`
}
