package memory

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the memory layer.
var (
	// ErrEmbeddingUnavailable indicates the embedding provider could not
	// be reached, after retries were exhausted.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrStoreUnavailable indicates the vector store could not be
	// reached, after retries were exhausted.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrRetrievalTimeout indicates a retrieval subtask exceeded its
	// deadline. Treated as a partial failure, never a pipeline abort.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrInvalidQuery is a caller error: empty query or message text.
	// Returned synchronously, never retried.
	ErrInvalidQuery = errors.New("invalid query: empty text")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// InvariantViolationError reports multiple active records for one
// (owner, subject key). It is auto-healed most-recent-wins but never
// silently dropped: it indicates a race or bug upstream.
type InvariantViolationError struct {
	Owner      string
	SubjectKey string
	ActiveIDs  []string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %d active records for owner=%s subject=%s",
		len(e.ActiveIDs), e.Owner, e.SubjectKey)
}

// IsTransient reports whether err is a transient I/O failure worth
// retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrStoreUnavailable)
}
