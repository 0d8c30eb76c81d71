package memory

import "time"

// Space identifies an independent embedding dimension.
type Space string

const (
	SpaceContent Space = "content"
	SpaceEmotion Space = "emotion"
	SpacePersona Space = "persona"
)

// Spaces lists all vector spaces in a fixed order.
var Spaces = []Space{SpaceContent, SpaceEmotion, SpacePersona}

// Valid reports whether s is a known vector space.
func (s Space) Valid() bool {
	switch s {
	case SpaceContent, SpaceEmotion, SpacePersona:
		return true
	}
	return false
}

// Status is the lifecycle state of a MemoryRecord.
type Status string

const (
	// StatusActive marks the authoritative record for its subject key.
	StatusActive Status = "active"

	// StatusSuperseded marks a record replaced by a newer one. A
	// superseded record always carries a non-empty SupersededBy.
	StatusSuperseded Status = "superseded"

	// StatusDisputed marks a record involved in an unresolved conflict.
	StatusDisputed Status = "disputed"
)

// Record is a persisted fact or conversational snippet.
type Record struct {
	// ID is a ULID. Lexicographic order on IDs matches creation order,
	// which makes ID a deterministic tie-break for equal timestamps.
	ID    string
	Owner string

	// SubjectKey is the normalized attribute the fact concerns
	// (e.g. "pet_name"). Empty for plain conversational snippets,
	// which never participate in contradiction resolution.
	SubjectKey string

	// Value is the fact value or snippet text.
	Value string

	// Vectors holds one embedding per populated vector space.
	Vectors map[Space][]float32

	CreatedAt time.Time

	// SupersededBy references the newer record that replaced this one.
	// Empty unless Status is StatusSuperseded.
	SupersededBy string

	Status Status
}

// Clone returns a deep copy of the record. Stores hand out clones so
// callers can never mutate the authoritative copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Vectors != nil {
		cp.Vectors = make(map[Space][]float32, len(r.Vectors))
		for space, vec := range r.Vectors {
			v := make([]float32, len(vec))
			copy(v, vec)
			cp.Vectors[space] = v
		}
	}
	return &cp
}

// ScoredRecord pairs a record with its retrieval scores.
type ScoredRecord struct {
	Record *Record

	// Score is the combined ranking score. For temporal retrieval it is
	// zero; position carries the ordering.
	Score float64

	// SpaceScores holds the per-vector-space similarity scores for the
	// spaces in which the record was a candidate.
	SpaceScores map[Space]float64
}

// RetrievalResult is a ranked sequence of records. It never contains
// duplicate record IDs. Ephemeral, not persisted.
type RetrievalResult struct {
	Records []ScoredRecord
}

// Empty reports whether the result holds no records.
func (r RetrievalResult) Empty() bool { return len(r.Records) == 0 }

// IDs returns the record IDs in rank order.
func (r RetrievalResult) IDs() []string {
	ids := make([]string, len(r.Records))
	for i, sr := range r.Records {
		ids[i] = sr.Record.ID
	}
	return ids
}
