package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

// temporalMarkers are the relative-time phrases that push a query onto
// the recency path. Checked against the lowercased query text.
var temporalMarkers = []string{
	"last",
	"just now",
	"earlier today",
	"a moment ago",
	"a while ago",
	"recently",
	"previous",
	"previously",
	"yesterday",
	"before",
	"latest",
	"most recent",
}

// stopwords are ignored when testing for a strong topical term.
var stopwords = map[string]struct{}{
	"what": {}, "was": {}, "the": {}, "you": {}, "did": {}, "say": {},
	"tell": {}, "told": {}, "me": {}, "about": {}, "that": {}, "this": {},
	"your": {}, "from": {}, "have": {}, "when": {}, "were": {}, "then": {},
	"just": {}, "now": {}, "thing": {}, "we": {}, "talked": {},
}

// Router classifies a query as temporal, semantic, or composite and
// dispatches to the matching retrieval strategy.
type Router struct {
	temporal *TemporalRetriever
	multi    *MultiVectorRetriever
	cache    *RetrievalCache
	logger   *slog.Logger
}

// NewRouter creates a memory router. cache may be nil; when present it
// is a read-through, time-bounded optimization and never authoritative.
func NewRouter(temporal *TemporalRetriever, multi *MultiVectorRetriever, cache *RetrievalCache, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		temporal: temporal,
		multi:    multi,
		cache:    cache,
		logger:   logger.With(slog.String("component", "memory_router")),
	}
}

// Route dispatches the query to the temporal retriever, the
// multi-vector retriever, or both. An owner with no stored memories
// gets an empty result, not an error.
func (r *Router) Route(ctx context.Context, query, owner string, hints core.Hints, limit int) (RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return RetrievalResult{}, ErrInvalidQuery
	}
	if limit <= 0 {
		limit = 10
	}

	if r.cache != nil {
		if cached, ok := r.cache.Get(owner, query, hints); ok {
			r.logger.DebugContext(ctx, "retrieval cache hit", slog.String("owner", owner))
			return cached, nil
		}
	}

	wantTemporal := hints.PreferRecent || hasTemporalMarker(query)
	wantSemantic := !wantTemporal || hasTopicalTerm(query)

	var result RetrievalResult
	var err error
	switch {
	case wantTemporal && wantSemantic:
		result, err = r.routeComposite(ctx, query, owner, hints, limit)
	case wantTemporal:
		result, err = r.temporal.RetrieveRecent(ctx, owner, hints.TopicFilter, limit)
	default:
		result, err = r.multi.RetrieveSimilar(ctx, Query{Content: query}, owner, limit)
	}
	if err != nil {
		return RetrievalResult{}, err
	}

	if r.cache != nil {
		r.cache.Set(owner, query, hints, result)
	}
	return result, nil
}

// routeComposite runs both strategies and merges: temporal-ordered
// results first, semantic results after, deduplicated by record ID.
func (r *Router) routeComposite(ctx context.Context, query, owner string, hints core.Hints, limit int) (RetrievalResult, error) {
	recent, err := r.temporal.RetrieveRecent(ctx, owner, hints.TopicFilter, limit)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("composite temporal leg: %w", err)
	}

	similar, err := r.multi.RetrieveSimilar(ctx, Query{Content: query}, owner, limit)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("composite semantic leg: %w", err)
	}

	seen := make(map[string]struct{}, len(recent.Records))
	merged := RetrievalResult{Records: make([]ScoredRecord, 0, len(recent.Records)+len(similar.Records))}
	for _, sr := range recent.Records {
		seen[sr.Record.ID] = struct{}{}
		merged.Records = append(merged.Records, sr)
	}
	for _, sr := range similar.Records {
		if _, dup := seen[sr.Record.ID]; dup {
			continue
		}
		seen[sr.Record.ID] = struct{}{}
		merged.Records = append(merged.Records, sr)
	}
	if len(merged.Records) > limit {
		merged.Records = merged.Records[:limit]
	}
	return merged, nil
}

// hasTemporalMarker reports whether the query references relative time.
func hasTemporalMarker(query string) bool {
	lower := strings.ToLower(query)
	for _, marker := range temporalMarkers {
		if strings.Contains(marker, " ") {
			if strings.Contains(lower, marker) {
				return true
			}
			continue
		}
		for _, word := range strings.FieldsFunc(lower, isWordSeparator) {
			if word == marker {
				return true
			}
		}
	}
	return false
}

// hasTopicalTerm reports whether the query retains a strong topical
// term once stopwords and temporal markers are stripped: any remaining
// word of four or more characters.
func hasTopicalTerm(query string) bool {
	lower := strings.ToLower(query)
	for _, word := range strings.FieldsFunc(lower, isWordSeparator) {
		if len(word) < 4 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if isTemporalWord(word) {
			continue
		}
		return true
	}
	return false
}

func isTemporalWord(word string) bool {
	for _, marker := range temporalMarkers {
		if word == marker {
			return true
		}
	}
	return false
}

func isWordSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':', '"', '\'':
		return true
	}
	return false
}
