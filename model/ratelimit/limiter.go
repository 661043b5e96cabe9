// Package ratelimit provides an adaptive, cluster-aware rate limiter for
// model.Client. It wraps a provider client in an AIMD token bucket: every
// successful call nudges the tokens-per-minute budget up, every
// TransientModel-kind error (provider backpressure) halves it. When a
// Redis client is supplied, the current budget is published under a
// shared key so every process in the fleet converges on the same
// backoff instead of each guessing independently.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/redis/go-redis/v9"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/model"
)

// Limiter applies an AIMD-style adaptive token bucket in front of a
// model.Client.
type Limiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64

	redis *redis.Client
	key   string
}

// New constructs a Limiter with an initial tokens-per-minute budget and an
// upper bound. rdb and key are optional: when both are set, the limiter
// periodically synchronizes its budget with the shared Redis key so a
// backoff observed on one process is honored fleet-wide.
func New(rdb *redis.Client, key string, initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
		redis:        rdb,
		key:          key,
	}
}

// Wrap returns a model.Client that enforces this limiter's budget around
// Chat and StreamChat calls before delegating to next.
func (l *Limiter) Wrap(next model.Client) model.Client {
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    model.Client
	limiter *Limiter
}

func (c *limitedClient) Name() string { return c.next.Name() }

func (c *limitedClient) Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error) {
	if err := c.limiter.wait(ctx, maxTokens); err != nil {
		return "", err
	}
	reply, err := c.next.Chat(ctx, messages, temperature, maxTokens)
	c.limiter.observe(ctx, err)
	return reply, err
}

func (c *limitedClient) StreamChat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int, onChunk func(model.Chunk) error) error {
	if err := c.limiter.wait(ctx, maxTokens); err != nil {
		return err
	}
	err := c.next.StreamChat(ctx, messages, temperature, maxTokens, onChunk)
	c.limiter.observe(ctx, err)
	return err
}

func (c *limitedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.next.Embed(ctx, text)
}

func (c *limitedClient) ClassifyIntent(ctx context.Context, goal string, recentHistory []model.Message) (model.Intent, error) {
	return c.next.ClassifyIntent(ctx, goal, recentHistory)
}

func (l *Limiter) wait(ctx context.Context, maxTokens int) error {
	l.syncFromCluster(ctx)
	tokens := maxTokens
	if tokens <= 0 {
		tokens = 512
	}
	return l.limiter.WaitN(ctx, tokens)
}

func (l *Limiter) observe(ctx context.Context, err error) {
	if err == nil {
		l.probe(ctx)
		return
	}
	if agierr.IsKind(err, agierr.KindTransientModel) {
		l.backoff(ctx)
	}
}

func (l *Limiter) backoff(ctx context.Context) {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.apply(newTPM)
	l.mu.Unlock()
	l.publish(ctx, newTPM)
}

func (l *Limiter) probe(ctx context.Context) {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	changed := newTPM != l.currentTPM
	l.apply(newTPM)
	l.mu.Unlock()
	if changed {
		l.publish(ctx, newTPM)
	}
}

// apply must be called with l.mu held.
func (l *Limiter) apply(newTPM float64) {
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *Limiter) publish(ctx context.Context, tpm float64) {
	if l.redis == nil || l.key == "" {
		return
	}
	l.redis.Set(ctx, l.key, strconv.FormatFloat(tpm, 'f', -1, 64), 5*time.Minute)
}

// syncFromCluster adopts the lowest of this process's current budget and
// whatever budget another process in the fleet most recently published,
// so a backoff seen anywhere propagates without every process having to
// individually hit the provider's rate limit first.
func (l *Limiter) syncFromCluster(ctx context.Context) {
	if l.redis == nil || l.key == "" {
		return
	}
	raw, err := l.redis.Get(ctx, l.key).Result()
	if err != nil {
		return
	}
	shared, err := strconv.ParseFloat(raw, 64)
	if err != nil || shared <= 0 {
		return
	}
	l.mu.Lock()
	if shared < l.currentTPM {
		l.apply(shared)
	}
	l.mu.Unlock()
}
