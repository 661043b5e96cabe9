package model

import (
	"context"

	"github.com/kanephamphu/connex-agi/agierr"
)

// ProviderEntry pairs a named Client with the default model identifier
// the Router should request from it for a given task class.
type ProviderEntry struct {
	Client Client
	Model  string
}

// Router selects a (provider, model) pair per task class from a priority
// table, filtered to providers that are actually configured (constructed
// with credentials). A table entry for a task class lists providers most
// preferred first; the Router picks the first entry whose Client is
// non-nil.
type Router struct {
	table map[TaskClass][]ProviderEntry
}

// NewRouter builds a Router from an explicit priority table. Callers
// typically build the table once at startup from whichever provider
// adapters have credentials configured (see DefaultTable).
func NewRouter(table map[TaskClass][]ProviderEntry) *Router {
	return &Router{table: table}
}

// DefaultTable returns the priority table described in spec §4.1:
// PLANNING prefers a reasoning-tier model, FAST prefers low latency,
// CODING and CREATIVE lean on the same reasoning-capable provider as
// PLANNING, GENERAL falls back across all three. Any of anthropic,
// bedrock, openai may be nil if that provider's credentials are absent;
// Select skips nil entries.
func DefaultTable(anthropic, bedrock, openai Client) map[TaskClass][]ProviderEntry {
	return map[TaskClass][]ProviderEntry{
		TaskPlanning: {{anthropic, ""}, {bedrock, ""}, {openai, ""}},
		TaskCoding:   {{anthropic, ""}, {bedrock, ""}, {openai, ""}},
		TaskCreative: {{anthropic, ""}, {openai, ""}, {bedrock, ""}},
		TaskFast:     {{openai, ""}, {anthropic, ""}, {bedrock, ""}},
		TaskGeneral:  {{anthropic, ""}, {openai, ""}, {bedrock, ""}},
	}
}

// Select returns the first configured provider for class, or
// ErrNoProviderConfigured if the class has no entry or every candidate
// is nil (no credentials).
func (r *Router) Select(class TaskClass) (Client, error) {
	for _, entry := range r.table[class] {
		if entry.Client != nil {
			return entry.Client, nil
		}
	}
	return nil, ErrNoProviderConfigured
}

// Chat routes to the provider selected for class and performs a
// non-streaming completion.
func (r *Router) Chat(ctx context.Context, class TaskClass, messages []Message, temperature float64, maxTokens int) (string, error) {
	c, err := r.Select(class)
	if err != nil {
		return "", err
	}
	return c.Chat(ctx, messages, temperature, maxTokens)
}

// StreamChat routes to the provider selected for class and streams a
// completion.
func (r *Router) StreamChat(ctx context.Context, class TaskClass, messages []Message, temperature float64, maxTokens int, onChunk func(Chunk) error) error {
	c, err := r.Select(class)
	if err != nil {
		return err
	}
	return c.StreamChat(ctx, messages, temperature, maxTokens, onChunk)
}

// Embed routes to the first configured provider that supports
// embeddings (skipping ErrEmbedUnsupported providers), trying GENERAL's
// table in order.
func (r *Router) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error = ErrNoProviderConfigured
	for _, entry := range r.table[TaskGeneral] {
		if entry.Client == nil {
			continue
		}
		v, err := entry.Client.Embed(ctx, text)
		if err == nil {
			return v, nil
		}
		if agierr.IsKind(err, agierr.KindConfiguration) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// ClassifyIntent routes to the FAST task class (low-latency, single-token
// classification per spec §4.1).
func (r *Router) ClassifyIntent(ctx context.Context, goal string, recentHistory []Message) (Intent, error) {
	c, err := r.Select(TaskFast)
	if err != nil {
		return "", err
	}
	return c.ClassifyIntent(ctx, goal, recentHistory)
}
