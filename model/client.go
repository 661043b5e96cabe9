// Package model defines the provider-agnostic Client contract (chat,
// streaming chat, embed, classify_intent) and the Router that selects a
// provider+model pair per task class. Concrete providers live in
// sibling packages under model/*.
package model

import (
	"context"
	"strings"
)

// ConversationRole is the role of a Message in a conversation.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// Message is one turn of a conversation passed to Chat/StreamChat.
type Message struct {
	Role    ConversationRole
	Content string
}

// TaskClass is the routing key the Router's priority table dispatches on.
type TaskClass string

const (
	TaskPlanning TaskClass = "PLANNING"
	TaskCoding   TaskClass = "CODING"
	TaskCreative TaskClass = "CREATIVE"
	TaskFast     TaskClass = "FAST"
	TaskGeneral  TaskClass = "GENERAL"
)

// Intent is the exactly-one-of-four classification result of ClassifyIntent.
type Intent string

const (
	IntentChat          Intent = "CHAT"
	IntentResearch      Intent = "RESEARCH"
	IntentSingleAction  Intent = "SINGLE_ACTION"
	IntentPlan          Intent = "PLAN"
)

// TokenUsage reports token accounting for a completed call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Chunk is one streaming event from StreamChat.
type Chunk struct {
	Text       string
	Done       bool
	Usage      *TokenUsage
	StopReason string
}

// ParseIntent maps a fast-model's free-text reply to one of the four
// Intent values, defaulting to IntentChat when no label is recognized —
// mirroring the classifier's fail-safe-to-conversational contract.
func ParseIntent(reply string) Intent {
	upper := strings.ToUpper(strings.TrimSpace(reply))
	switch {
	case strings.Contains(upper, string(IntentPlan)):
		return IntentPlan
	case strings.Contains(upper, string(IntentSingleAction)):
		return IntentSingleAction
	case strings.Contains(upper, string(IntentResearch)):
		return IntentResearch
	default:
		return IntentChat
	}
}

// Client is the contract every provider adapter implements. Methods never
// fail for content-shape issues (invalid JSON, schema mismatch) — those
// are the caller's responsibility to detect and retry; Client returns a
// typed error only for provider/protocol level failure (see errors.go).
type Client interface {
	// Chat performs a non-streaming completion.
	Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error)
	// StreamChat performs a streaming completion, invoking onChunk for
	// each incremental chunk until the stream ends or ctx is canceled.
	StreamChat(ctx context.Context, messages []Message, temperature float64, maxTokens int, onChunk func(Chunk) error) error
	// Embed returns a fixed-length embedding vector for text, or
	// ErrEmbedUnsupported if this provider does not offer embeddings.
	Embed(ctx context.Context, text string) ([]float32, error)
	// ClassifyIntent performs a single fast-model call that returns
	// exactly one Intent value.
	ClassifyIntent(ctx context.Context, goal string, recentHistory []Message) (Intent, error)
	// Name identifies the provider for routing/diagnostics (e.g. "anthropic").
	Name() string
}
