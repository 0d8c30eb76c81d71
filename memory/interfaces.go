package memory

import "context"

// Match is one similarity hit: a record ID with its space-local score.
type Match struct {
	ID    string
	Score float64
}

// VectorStore is the storage backend for memory records.
// Implementations must be safe for concurrent use; the store is reached
// by any pipeline worker.
//
// Implementations: chromem.Store (embedded, local), with pgvector as the
// intended production swap.
type VectorStore interface {
	// Upsert stores or replaces a record together with its embeddings.
	Upsert(ctx context.Context, rec *Record) error

	// Get retrieves a record by owner and ID.
	Get(ctx context.Context, owner, id string) (*Record, error)

	// UpdateStatus transitions a record's status. supersededBy is the
	// replacing record's ID when status is StatusSuperseded, otherwise
	// empty.
	UpdateStatus(ctx context.Context, owner, id string, status Status, supersededBy string) error

	// QueryBySimilarity returns the topK closest active records to the
	// query vector in one vector space, best first.
	QueryBySimilarity(ctx context.Context, space Space, queryVec []float32, owner string, topK int) ([]Match, error)

	// ScrollByRecency returns active records for the owner ordered by
	// creation time descending (ties: ID ascending), with no vector
	// math. topicFilter, when non-empty, keeps only records whose
	// subject key or value matches it case-insensitively.
	ScrollByRecency(ctx context.Context, owner, topicFilter string, limit int) ([]*Record, error)

	// ListActiveBySubjectKey returns all active records for
	// (owner, subjectKey). More than one entry means the single-active
	// invariant has been violated and the resolver must heal it.
	ListActiveBySubjectKey(ctx context.Context, owner, subjectKey string) ([]*Record, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to an embedding vector for one vector space.
//
// Implementations must be deterministic enough for reproducible tests:
// the mock embedder is fully deterministic, the ONNX embedder runs a
// fixed local model.
type Embedder interface {
	Embed(ctx context.Context, text string, space Space) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
