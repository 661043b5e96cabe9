// Package anthropic adapts the Anthropic Claude Messages API to the
// model.Client contract. It is a generalization of a tool-calling chat
// client down to the router's four-operation surface: plain chat,
// streaming chat, embeddings (unsupported), and single-shot intent
// classification.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/model"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, so tests can substitute a fake in place of *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
}

// New builds an adapter from an already-configured Anthropic client.
func New(msg MessagesClient, defaultModel string) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	return &Client{msg: msg, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client reading ANTHROPIC_API_KEY-style
// credentials from an explicit key rather than the environment.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultModel)
}

func (c *Client) Name() string { return "anthropic" }

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	var system []sdk.TextBlockParam
	var out []sdk.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case model.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, nil, fmt.Errorf("anthropic: unknown role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return out, system, nil
}

func (c *Client) params(messages []model.Message, temperature float64, maxTokens int) (*sdk.MessageNewParams, error) {
	msgs, system, err := encodeMessages(messages)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "anthropic: encode messages", agierr.FromError(err))
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	p := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(c.defaultModel),
	}
	if len(system) > 0 {
		p.System = system
	}
	if temperature > 0 {
		p.Temperature = sdk.Float(temperature)
	}
	return &p, nil
}

func (c *Client) Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error) {
	params, err := c.params(messages, temperature, maxTokens)
	if err != nil {
		return "", err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return "", agierr.Wrap(agierr.KindTransientModel, "anthropic: messages.new", agierr.FromError(err))
	}
	return extractText(msg), nil
}

func extractText(msg *sdk.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if variant := block.AsAny(); variant != nil {
			if tb, ok := variant.(sdk.TextBlock); ok {
				sb.WriteString(tb.Text)
			}
		}
	}
	return sb.String()
}

func (c *Client) StreamChat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int, onChunk func(model.Chunk) error) error {
	params, err := c.params(messages, temperature, maxTokens)
	if err != nil {
		return err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
			if text := delta.Delta.Text; text != "" {
				if err := onChunk(model.Chunk{Text: text}); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return agierr.Wrap(agierr.KindTransientModel, "anthropic: streaming", agierr.FromError(err))
	}
	return onChunk(model.Chunk{Done: true})
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, model.ErrEmbedUnsupported
}

func (c *Client) ClassifyIntent(ctx context.Context, goal string, recentHistory []model.Message) (model.Intent, error) {
	prompt := classifyPrompt(goal, recentHistory)
	reply, err := c.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, 0, 16)
	if err != nil {
		return "", err
	}
	return model.ParseIntent(reply), nil
}

func classifyPrompt(goal string, history []model.Message) string {
	var sb strings.Builder
	sb.WriteString("Classify the following goal as exactly one of CHAT, RESEARCH, SINGLE_ACTION, PLAN. Reply with only the label.\n")
	for _, h := range history {
		sb.WriteString(string(h.Role))
		sb.WriteString(": ")
		sb.WriteString(h.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Goal: ")
	sb.WriteString(goal)
	return sb.String()
}
