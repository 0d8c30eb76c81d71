package memory

import (
	"context"
	"fmt"
	"log/slog"
)

// TemporalRetriever answers queries that reference relative time, such
// as "what was the last joke you told". Recency is the sole ranking
// signal; vector similarity is never consulted.
type TemporalRetriever struct {
	store  VectorStore
	retry  RetryConfig
	logger *slog.Logger
}

// NewTemporalRetriever creates a temporal retriever.
func NewTemporalRetriever(store VectorStore, cfg *Config, logger *slog.Logger) *TemporalRetriever {
	cfg = cfg.normalized()
	if logger == nil {
		logger = slog.Default()
	}
	return &TemporalRetriever{
		store:  store,
		retry:  cfg.Retry,
		logger: logger.With(slog.String("component", "temporal_retriever")),
	}
}

// RetrieveRecent returns the most recent active records for the owner,
// newest first, optionally narrowed by topicFilter. Ties on creation
// time are broken ascending by ID, so repeated calls over the same data
// are reproducible.
func (t *TemporalRetriever) RetrieveRecent(ctx context.Context, owner, topicFilter string, limit int) (RetrievalResult, error) {
	if limit <= 0 {
		limit = 10
	}

	var records []*Record
	err := Retry(ctx, t.retry, func() error {
		var scrollErr error
		records, scrollErr = t.store.ScrollByRecency(ctx, owner, topicFilter, limit)
		return scrollErr
	})
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("scroll by recency: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	result := RetrievalResult{Records: make([]ScoredRecord, 0, len(records))}
	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		result.Records = append(result.Records, ScoredRecord{Record: rec})
	}

	t.logger.DebugContext(ctx, "temporal retrieval",
		slog.String("owner", owner),
		slog.String("topic_filter", topicFilter),
		slog.Int("records", len(result.Records)))
	return result, nil
}
