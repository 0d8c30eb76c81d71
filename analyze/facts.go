package analyze

import (
	"regexp"
	"strings"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

// factPattern binds one extraction regex to a subject-key builder.
// Patterns are tried in order; the first match per pattern is kept.
type factPattern struct {
	re         *regexp.Regexp
	confidence float64
	// key builds the subject key from the regex groups.
	key func(groups []string) string
	// valueGroup is the index of the value capture group.
	valueGroup int
}

var factPatterns = []factPattern{
	// "my name is Mark" / "call me Mark"
	{
		re:         regexp.MustCompile(`(?i)\b(?:my name is|call me)\s+([A-Z][\w-]*)`),
		confidence: 0.9,
		key:        func([]string) string { return "user_name" },
		valueGroup: 1,
	},
	// "I renamed my pet to Shadow" / "I changed my dog's name to Rex"
	{
		re:         regexp.MustCompile(`(?i)\bi\s+(?:renamed|changed)\s+my\s+([a-z][a-z ]{1,20}?)(?:'s name)?\s+to\s+([A-Z][\w-]*)`),
		confidence: 0.9,
		key:        func(g []string) string { return normalizeKey(g[1]) + "_name" },
		valueGroup: 2,
	},
	// "my cat's name is Whiskers" / "my pet name is Max"
	{
		re:         regexp.MustCompile(`(?i)\bmy\s+([a-z][a-z ]{1,20}?)(?:'s)?\s+name\s+is\s+([A-Z][\w-]*)`),
		confidence: 0.9,
		key:        func(g []string) string { return normalizeKey(g[1]) + "_name" },
		valueGroup: 2,
	},
	// "I live in Seattle"
	{
		re:         regexp.MustCompile(`(?i)\bi\s+live\s+in\s+([A-Z][\w ,-]{1,40})`),
		confidence: 0.85,
		key:        func([]string) string { return "location" },
		valueGroup: 1,
	},
	// "my favorite color is blue"
	{
		re:         regexp.MustCompile(`(?i)\bmy\s+favou?rite\s+([a-z][a-z ]{1,20}?)\s+is\s+([\w][\w -]{0,40})`),
		confidence: 0.8,
		key:        func(g []string) string { return "favorite_" + normalizeKey(g[1]) },
		valueGroup: 2,
	},
	// "I love pizza" / "I like hiking". Keyed per value so likes never
	// contradict each other.
	{
		re:         regexp.MustCompile(`(?i)\bi\s+(?:love|like|enjoy)\s+([a-z][\w -]{1,40})`),
		confidence: 0.7,
		key:        func(g []string) string { return "likes_" + normalizeKey(g[1]) },
		valueGroup: 1,
	},
}

// hypotheticalMarkers reject facts stated conditionally rather than
// asserted.
var hypotheticalMarkers = []string{"if ", "would ", "could ", "might ", "maybe ", "imagine ", "suppose ", "what if"}

// pronounValues are never acceptable fact values.
var pronounValues = map[string]struct{}{
	"it": {}, "that": {}, "this": {}, "them": {}, "him": {}, "her": {}, "me": {}, "you": {},
}

// FactExtractor pulls (subject key, value) pairs out of message text.
// It is deliberately conservative: questions, bot commands, and
// hypotheticals yield no facts at all, and junk values are rejected, so
// the contradiction resolver only ever sees asserted facts.
type FactExtractor struct{}

// NewFactExtractor creates a fact extractor.
func NewFactExtractor() *FactExtractor { return &FactExtractor{} }

// Extract returns the facts asserted in text, in pattern order. A
// message with no extractable facts returns an empty slice.
func (f *FactExtractor) Extract(text string) []core.Fact {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !isFactBearing(trimmed) {
		return nil
	}

	var facts []core.Fact
	seen := make(map[string]struct{})
	for _, pattern := range factPatterns {
		groups := pattern.re.FindStringSubmatch(trimmed)
		if groups == nil {
			continue
		}
		value := cleanValue(groups[pattern.valueGroup])
		if !isAcceptableValue(value) {
			continue
		}
		key := pattern.key(groups)
		if key == "" || key == "_name" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		facts = append(facts, core.Fact{
			SubjectKey: key,
			Value:      value,
			Confidence: pattern.confidence,
		})
	}
	return facts
}

// isFactBearing rejects whole messages that cannot assert facts:
// questions, bot commands, and hypotheticals.
func isFactBearing(text string) bool {
	if strings.Contains(text, "?") {
		return false
	}
	if strings.HasPrefix(text, "!") || strings.HasPrefix(text, "/") {
		return false
	}
	lower := strings.ToLower(text)
	for _, marker := range hypotheticalMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// cleanValue trims trailing punctuation and clause remainders from a
// captured value.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	// Cut at conjunctions so "pizza and also my keys" keeps "pizza".
	for _, cut := range []string{" and ", " but ", " because ", " so "} {
		if idx := strings.Index(strings.ToLower(v), cut); idx > 0 {
			v = v[:idx]
		}
	}
	return strings.Trim(v, " .,!;:")
}

func isAcceptableValue(v string) bool {
	if len(v) < 2 {
		return false
	}
	_, pronoun := pronounValues[strings.ToLower(v)]
	return !pronoun
}

// normalizeKey lowercases and snake-cases a captured subject phrase.
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ' || r == '-' || r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
