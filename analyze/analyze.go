// Package analyze provides the per-message analysis tasks the
// conversation pipeline fans out to: emotional-tone analysis,
// persona/style analysis, and fact extraction.
//
// Two implementations exist for the analyzers: fast lexical scorers
// that work offline, and an LLM-backed analyzer for production. The
// pipeline treats them interchangeably through the interfaces here.
package analyze

import (
	"context"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

// EmotionAnalyzer scores the emotional tone of one message.
type EmotionAnalyzer interface {
	AnalyzeEmotion(ctx context.Context, text string) (core.Emotion, error)
}

// PersonaAnalyzer classifies the speaking style of one message.
type PersonaAnalyzer interface {
	AnalyzePersona(ctx context.Context, text string) (core.Persona, error)
}
