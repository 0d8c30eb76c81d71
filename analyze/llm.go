package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

const emotionPrompt = `Classify the emotional tone of the user message.
Respond with only a JSON object, no prose:
{"primary": "<joy|anger|sadness|fear|surprise|neutral>", "intensity": <0.0-1.0>, "valence": <-1.0-1.0>}`

const personaPrompt = `Classify the speaking style of the user message.
Respond with only a JSON object, no prose:
{"style": "<casual|formal|playful|neutral>", "formality": <0.0-1.0>, "markers": ["<short marker>", ...]}`

// LLMAnalyzer implements both analyzers against the Claude API. One
// short completion per aspect, JSON response contract.
type LLMAnalyzer struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewLLMAnalyzer creates a Claude-backed analyzer. model may be empty
// to use a default small model.
func NewLLMAnalyzer(client *anthropic.Client, model string, logger *slog.Logger) *LLMAnalyzer {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMAnalyzer{
		client: client,
		model:  model,
		logger: logger.With(slog.String("component", "llm_analyzer")),
	}
}

// AnalyzeEmotion implements EmotionAnalyzer.
func (a *LLMAnalyzer) AnalyzeEmotion(ctx context.Context, text string) (core.Emotion, error) {
	raw, err := a.complete(ctx, emotionPrompt, text)
	if err != nil {
		return core.Emotion{}, fmt.Errorf("emotion analysis: %w", err)
	}

	var parsed struct {
		Primary   string  `json:"primary"`
		Intensity float64 `json:"intensity"`
		Valence   float64 `json:"valence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return core.Emotion{}, fmt.Errorf("emotion analysis: parse response %q: %w", raw, err)
	}
	return core.Emotion{
		Primary:   parsed.Primary,
		Intensity: clamp(parsed.Intensity, 0, 1),
		Valence:   clamp(parsed.Valence, -1, 1),
	}, nil
}

// AnalyzePersona implements PersonaAnalyzer.
func (a *LLMAnalyzer) AnalyzePersona(ctx context.Context, text string) (core.Persona, error) {
	raw, err := a.complete(ctx, personaPrompt, text)
	if err != nil {
		return core.Persona{}, fmt.Errorf("persona analysis: %w", err)
	}

	var parsed struct {
		Style     string   `json:"style"`
		Formality float64  `json:"formality"`
		Markers   []string `json:"markers"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return core.Persona{}, fmt.Errorf("persona analysis: parse response %q: %w", raw, err)
	}
	return core.Persona{
		Style:     parsed.Style,
		Formality: clamp(parsed.Formality, 0, 1),
		Markers:   parsed.Markers,
	}, nil
}

// complete runs one short completion and returns the JSON payload from
// the response text.
func (a *LLMAnalyzer) complete(ctx context.Context, system, text string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return extractJSON(out), nil
}

// extractJSON strips code fences and surrounding prose from a model
// response, returning the outermost JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
