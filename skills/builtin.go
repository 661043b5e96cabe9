package skills

import (
	"context"
	"fmt"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/sensors"
)

// Chatter is the subset of model.Router the GeneralChat skill needs;
// satisfied by *model.Router.
type Chatter interface {
	Chat(ctx context.Context, class model.TaskClass, messages []model.Message, temperature float64, maxTokens int) (string, error)
}

// GeneralChat is the foundation conversational skill the Facade
// dispatches to directly on the CHAT fast-path, bypassing the Planner
// entirely.
type GeneralChat struct {
	router Chatter
}

// NewGeneralChat builds a GeneralChat skill routing through router.
func NewGeneralChat(router Chatter) *GeneralChat {
	return &GeneralChat{router: router}
}

func (g *GeneralChat) Metadata() apitypes.SkillMetadata {
	return apitypes.SkillMetadata{
		Name:        "general_chat",
		Description: "Handle general conversation, greetings, and non-technical questions",
		Category:    "foundation",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"history": map[string]any{"type": "array"},
			},
			"required": []any{"message"},
		},
		OutputSchema: map[string]any{"reply": "str"},
	}
}

func (g *GeneralChat) ValidateInputs(inputs map[string]any) error {
	if msg, ok := inputs["message"].(string); !ok || msg == "" {
		return fmt.Errorf("general_chat: message is required")
	}
	return nil
}

func (g *GeneralChat) CheckConfig() error { return nil }

// Execute builds a short system-prompted conversation from the
// supplied history and asks the router's creative tier for a reply,
// degrading to an apologetic canned reply (never a Go error) on model
// failure — the skill boundary the Orchestrator expects.
func (g *GeneralChat) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	message, _ := inputs["message"].(string)

	messages := []model.Message{
		{Role: model.RoleSystem, Content: "You are a helpful and friendly AI assistant. Engage in general conversation. Be concise, polite, and helpful."},
	}
	if turns, ok := inputs["history"].([]apitypes.ConversationTurn); ok {
		for _, t := range turns {
			messages = append(messages, model.Message{Role: model.RoleUser, Content: t.Goal})
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: t.Result})
		}
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: message})

	reply, err := g.router.Chat(ctx, model.TaskCreative, messages, 0.7, 1000)
	if err != nil {
		return map[string]any{
			"reply": fmt.Sprintf("I apologize, but I encountered an error responding: %s", err),
			"error": err.Error(),
		}, nil
	}
	return map[string]any{"reply": reply}, nil
}

// Synthesizer turns text into audible speech. No text-to-speech
// library appears anywhere in the example pack, so Speak stays
// transport-agnostic behind this interface.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) error
}

// Speak is the output skill that vocalises a final reply, toggling the
// shared is_speaking flag around synthesis so the Voice Ear sensor
// suspends listening while the system talks.
type Speak struct {
	synth    Synthesizer
	speaking *sensors.Speaking
}

// NewSpeak builds a Speak skill. speaking may be nil in tests that
// don't exercise the ear/speak echo-cancellation interplay.
func NewSpeak(synth Synthesizer, speaking *sensors.Speaking) *Speak {
	return &Speak{synth: synth, speaking: speaking}
}

func (s *Speak) Metadata() apitypes.SkillMetadata {
	return apitypes.SkillMetadata{
		Name:        "speak",
		Description: "Converts text to speech and plays it locally.",
		Category:    "output",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
				"lang": map[string]any{"type": "string", "default": "en"},
			},
			"required": []any{"text"},
		},
	}
}

func (s *Speak) ValidateInputs(inputs map[string]any) error {
	if text, ok := inputs["text"].(string); !ok || text == "" {
		return fmt.Errorf("speak: text is required")
	}
	return nil
}

func (s *Speak) CheckConfig() error { return nil }

func (s *Speak) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	text, _ := inputs["text"].(string)
	lang, _ := inputs["lang"].(string)
	if lang == "" {
		lang = "en"
	}

	if s.speaking != nil {
		s.speaking.Set(true)
		defer s.speaking.Set(false)
	}

	if err := s.synth.Synthesize(ctx, text, lang); err != nil {
		return map[string]any{"status": "failed", "error": err.Error()}, nil
	}
	return map[string]any{"status": "success"}, nil
}
