// Package core holds the shared conversation types used across the
// memory, analysis, and conversation packages.
package core

import "time"

// Message is one turn of dialogue. Immutable once stored.
type Message struct {
	// ID is a ULID, so lexicographic order matches arrival order.
	ID        string
	SessionID string
	Author    string
	Text      string
	Timestamp time.Time
}

// Hints carries caller guidance for memory retrieval.
type Hints struct {
	// PreferRecent forces the temporal retrieval path even when the
	// query text contains no relative-time phrasing.
	PreferRecent bool

	// TopicFilter narrows temporal retrieval to records whose subject
	// key or value matches the filter.
	TopicFilter string
}

// Emotion is the result of emotional-tone analysis for one message.
type Emotion struct {
	// Primary is the dominant detected emotion (e.g. "joy", "anger",
	// "sadness", "neutral").
	Primary string

	// Intensity is how strongly the emotion is expressed [0.0-1.0].
	Intensity float64

	// Valence is the overall positivity of the message [-1.0, 1.0].
	Valence float64
}

// Persona is the result of persona/style analysis for one message.
type Persona struct {
	// Style is the dominant register (e.g. "casual", "formal", "playful").
	Style string

	// Formality scores how formal the phrasing is [0.0-1.0].
	Formality float64

	// Markers lists the style markers that drove the classification.
	Markers []string
}

// Fact is a (subject key, value) pair extracted from message text.
// Subject keys are normalized identifiers such as "pet_name" so that
// facts about the same real-world attribute collide on the write path.
type Fact struct {
	SubjectKey string
	Value      string

	// Confidence is the extractor's confidence in the pair [0.0-1.0].
	Confidence float64
}
