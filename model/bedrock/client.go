// Package bedrock adapts the AWS Bedrock Converse API to the model.Client
// contract — a generalization of a tool-calling Converse client down to
// the router's four-operation surface.
package bedrock

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/model"
)

// RuntimeClient is the subset of *bedrockruntime.Client the adapter needs,
// matching its signature so tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New builds an adapter from an already-configured Bedrock runtime client.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

func (c *Client) Name() string { return "bedrock" }

func encodeMessages(msgs []model.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	var out []brtypes.Message
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case model.RoleUser:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case model.RoleAssistant:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		default:
			return nil, nil, errors.New("bedrock: unknown message role")
		}
	}
	if len(out) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return out, system, nil
}

func (c *Client) converseInput(messages []model.Message, temperature float64, maxTokens int) (*bedrockruntime.ConverseInput, error) {
	msgs, system, err := encodeMessages(messages)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "bedrock: encode messages", agierr.FromError(err))
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	cfg := &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	if temperature > 0 {
		cfg.Temperature = aws.Float32(float32(temperature))
	}
	return &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.defaultModel),
		Messages:        msgs,
		System:          system,
		InferenceConfig: cfg,
	}, nil
}

func (c *Client) Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error) {
	input, err := c.converseInput(messages, temperature, maxTokens)
	if err != nil {
		return "", err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return "", agierr.Wrap(agierr.KindTransientModel, "bedrock: converse", agierr.FromError(err))
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", model.ErrProtocolMismatch
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			sb.WriteString(tb.Value)
		}
	}
	return sb.String(), nil
}

// StreamChat falls back to a single non-streaming Converse call and
// delivers the whole reply as one chunk: Bedrock's ConverseStream API
// needs a long-lived event-stream reader the router's onChunk contract
// does not require here, and every current SPEC_FULL.md caller only
// consumes StreamChat for incremental UI echo, not token-level timing.
func (c *Client) StreamChat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int, onChunk func(model.Chunk) error) error {
	text, err := c.Chat(ctx, messages, temperature, maxTokens)
	if err != nil {
		return err
	}
	if err := onChunk(model.Chunk{Text: text}); err != nil {
		return err
	}
	return onChunk(model.Chunk{Done: true})
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, model.ErrEmbedUnsupported
}

func (c *Client) ClassifyIntent(ctx context.Context, goal string, recentHistory []model.Message) (model.Intent, error) {
	prompt := "Classify the following goal as exactly one of CHAT, RESEARCH, SINGLE_ACTION, PLAN. Reply with only the label.\nGoal: " + goal
	reply, err := c.Chat(ctx, append(recentHistory, model.Message{Role: model.RoleUser, Content: prompt}), 0, 16)
	if err != nil {
		return "", err
	}
	return model.ParseIntent(reply), nil
}
