// Package openai adapts the OpenAI Chat Completions and Embeddings APIs
// to the model.Client contract.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kanephamphu/connex-agi/agierr"
	cmodel "github.com/kanephamphu/connex-agi/model"
)

// Client implements model.Client via the OpenAI Chat Completions and
// Embeddings APIs.
type Client struct {
	client     openai.Client
	chatModel  string
	embedModel string
}

// New builds an adapter from an already-configured OpenAI client.
func New(client openai.Client, chatModel, embedModel string) (*Client, error) {
	if strings.TrimSpace(chatModel) == "" {
		return nil, errors.New("openai: chat model is required")
	}
	return &Client{client: client, chatModel: chatModel, embedModel: embedModel}, nil
}

// NewFromAPIKey constructs a client from an explicit API key.
func NewFromAPIKey(apiKey, chatModel, embedModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(openai.NewClient(option.WithAPIKey(apiKey)), chatModel, embedModel)
}

func (c *Client) Name() string { return "openai" }

func encodeMessages(msgs []cmodel.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case cmodel.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case cmodel.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case cmodel.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return nil, errors.New("openai: unknown message role")
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func (c *Client) params(messages []cmodel.Message, temperature float64, maxTokens int) (openai.ChatCompletionNewParams, error) {
	msgs, err := encodeMessages(messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, agierr.Wrap(agierr.KindExecution, "openai: encode messages", agierr.FromError(err))
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	p := openai.ChatCompletionNewParams{
		Model:               c.chatModel,
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if temperature > 0 {
		p.Temperature = openai.Float(temperature)
	}
	return p, nil
}

func (c *Client) Chat(ctx context.Context, messages []cmodel.Message, temperature float64, maxTokens int) (string, error) {
	params, err := c.params(messages, temperature, maxTokens)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", agierr.Wrap(agierr.KindTransientModel, "openai: chat completions", agierr.FromError(err))
	}
	if len(resp.Choices) == 0 {
		return "", cmodel.ErrProtocolMismatch
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) StreamChat(ctx context.Context, messages []cmodel.Message, temperature float64, maxTokens int, onChunk func(cmodel.Chunk) error) error {
	params, err := c.params(messages, temperature, maxTokens)
	if err != nil {
		return err
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			if err := onChunk(cmodel.Chunk{Text: text}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return agierr.Wrap(agierr.KindTransientModel, "openai: streaming", agierr.FromError(err))
	}
	return onChunk(cmodel.Chunk{Done: true})
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(c.embedModel) == "" {
		return nil, cmodel.ErrEmbedUnsupported
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embedModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, agierr.Wrap(agierr.KindTransientModel, "openai: embeddings", agierr.FromError(err))
	}
	if len(resp.Data) == 0 {
		return nil, cmodel.ErrProtocolMismatch
	}
	vec := resp.Data[0].Embedding
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}

func (c *Client) ClassifyIntent(ctx context.Context, goal string, recentHistory []cmodel.Message) (cmodel.Intent, error) {
	prompt := "Classify the following goal as exactly one of CHAT, RESEARCH, SINGLE_ACTION, PLAN. Reply with only the label.\nGoal: " + goal
	reply, err := c.Chat(ctx, append(recentHistory, cmodel.Message{Role: cmodel.RoleUser, Content: prompt}), 0, 16)
	if err != nil {
		return "", err
	}
	return cmodel.ParseIntent(reply), nil
}
