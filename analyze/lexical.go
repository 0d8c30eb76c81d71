package analyze

import (
	"context"
	"sort"
	"strings"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

// emotionLexicon maps keywords to (emotion, valence contribution).
// Deliberately small: the lexical analyzer is the offline fallback, not
// a sentiment model.
var emotionLexicon = map[string]struct {
	emotion string
	valence float64
}{
	"love":      {"joy", 1.0},
	"great":     {"joy", 0.8},
	"happy":     {"joy", 0.9},
	"glad":      {"joy", 0.7},
	"awesome":   {"joy", 0.9},
	"excited":   {"joy", 0.9},
	"thanks":    {"joy", 0.5},
	"thank":     {"joy", 0.5},
	"hate":      {"anger", -1.0},
	"angry":     {"anger", -0.9},
	"furious":   {"anger", -1.0},
	"annoyed":   {"anger", -0.6},
	"sad":       {"sadness", -0.8},
	"miss":      {"sadness", -0.5},
	"lonely":    {"sadness", -0.7},
	"cry":       {"sadness", -0.8},
	"scared":    {"fear", -0.7},
	"afraid":    {"fear", -0.7},
	"worried":   {"fear", -0.6},
	"nervous":   {"fear", -0.5},
	"wow":       {"surprise", 0.4},
	"surprised": {"surprise", 0.3},
}

// LexicalEmotion scores emotional tone by keyword valence. Offline and
// deterministic; suitable for tests and local development.
type LexicalEmotion struct{}

// NewLexicalEmotion creates the lexical emotion analyzer.
func NewLexicalEmotion() *LexicalEmotion { return &LexicalEmotion{} }

// AnalyzeEmotion implements EmotionAnalyzer.
func (a *LexicalEmotion) AnalyzeEmotion(ctx context.Context, text string) (core.Emotion, error) {
	counts := make(map[string]int)
	var valence float64
	var hits int

	for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		entry, ok := emotionLexicon[word]
		if !ok {
			continue
		}
		counts[entry.emotion]++
		valence += entry.valence
		hits++
	}

	if hits == 0 {
		return core.Emotion{Primary: "neutral"}, nil
	}

	// Dominant emotion; ties broken alphabetically for determinism.
	emotions := make([]string, 0, len(counts))
	for emotion := range counts {
		emotions = append(emotions, emotion)
	}
	sort.Slice(emotions, func(i, j int) bool {
		if counts[emotions[i]] != counts[emotions[j]] {
			return counts[emotions[i]] > counts[emotions[j]]
		}
		return emotions[i] < emotions[j]
	})

	intensity := float64(hits) / 5.0
	if intensity > 1.0 {
		intensity = 1.0
	}
	avgValence := valence / float64(hits)

	return core.Emotion{
		Primary:   emotions[0],
		Intensity: intensity,
		Valence:   avgValence,
	}, nil
}

// formalMarkers and casualMarkers drive the lexical persona scorer.
var (
	formalMarkers = []string{"please", "would you", "could you", "kindly", "regards", "sincerely", "furthermore"}
	casualMarkers = []string{"lol", "haha", "yeah", "nah", "gonna", "wanna", "btw", "omg", "hey"}
)

// LexicalPersona classifies speaking style from surface markers.
type LexicalPersona struct{}

// NewLexicalPersona creates the lexical persona analyzer.
func NewLexicalPersona() *LexicalPersona { return &LexicalPersona{} }

// AnalyzePersona implements PersonaAnalyzer.
func (a *LexicalPersona) AnalyzePersona(ctx context.Context, text string) (core.Persona, error) {
	lower := strings.ToLower(text)

	var markers []string
	formal, casual := 0, 0
	for _, m := range formalMarkers {
		if strings.Contains(lower, m) {
			formal++
			markers = append(markers, m)
		}
	}
	for _, m := range casualMarkers {
		if strings.Contains(lower, m) {
			casual++
			markers = append(markers, m)
		}
	}
	if strings.Contains(text, "!") {
		markers = append(markers, "exclamation")
	}

	total := formal + casual
	formality := 0.5
	if total > 0 {
		formality = float64(formal) / float64(total)
	}

	style := "neutral"
	switch {
	case formality >= 0.7 && total > 0:
		style = "formal"
	case formality <= 0.3 && total > 0:
		style = "casual"
	}

	return core.Persona{
		Style:     style,
		Formality: formality,
		Markers:   markers,
	}, nil
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':', '"', '\'', '(', ')':
		return true
	}
	return false
}
