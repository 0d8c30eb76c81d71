package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Query is a multi-aspect retrieval query. Content is required; the
// emotion and persona aspects are searched only when their query text is
// present.
type Query struct {
	Content string
	Emotion string
	Persona string
}

// spaceTexts returns the (space, text) pairs to search.
func (q Query) spaceTexts() map[Space]string {
	texts := map[Space]string{SpaceContent: q.Content}
	if q.Emotion != "" {
		texts[SpaceEmotion] = q.Emotion
	}
	if q.Persona != "" {
		texts[SpacePersona] = q.Persona
	}
	return texts
}

// MultiVectorRetriever runs similarity search independently in each
// requested vector space, concurrently, then merges the per-space
// candidate lists by weighted rank fusion.
type MultiVectorRetriever struct {
	store    VectorStore
	embedder Embedder
	cfg      *Config
	logger   *slog.Logger
}

// NewMultiVectorRetriever creates a multi-vector retriever.
func NewMultiVectorRetriever(store VectorStore, embedder Embedder, cfg *Config, logger *slog.Logger) *MultiVectorRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiVectorRetriever{
		store:    store,
		embedder: embedder,
		cfg:      cfg.normalized(),
		logger:   logger.With(slog.String("component", "multivector_retriever")),
	}
}

// spaceCandidates is one space's search outcome.
type spaceCandidates struct {
	space   Space
	matches []Match
	err     error
}

// RetrieveSimilar searches each provided vector space concurrently and
// returns the top limit records by combined score. Candidates below the
// configured similarity floor are dropped; when nothing clears the
// floor the result is empty rather than low-confidence noise.
func (m *MultiVectorRetriever) RetrieveSimilar(ctx context.Context, q Query, owner string, limit int) (RetrievalResult, error) {
	if q.Content == "" {
		return RetrievalResult{}, ErrInvalidQuery
	}
	if limit <= 0 {
		limit = 10
	}

	texts := q.spaceTexts()
	results := make(chan spaceCandidates, len(texts))

	var wg sync.WaitGroup
	for space, text := range texts {
		wg.Add(1)
		go func(space Space, text string) {
			defer wg.Done()
			matches, err := m.searchSpace(ctx, space, text, owner)
			results <- spaceCandidates{space: space, matches: matches, err: err}
		}(space, text)
	}
	wg.Wait()
	close(results)

	perSpace := make(map[Space][]Match, len(texts))
	for sc := range results {
		if sc.err != nil {
			// The content space is the primary signal; its failure
			// fails the retrieval. Optional spaces degrade to
			// content-only results.
			if sc.space == SpaceContent {
				return RetrievalResult{}, fmt.Errorf("search %s space: %w", sc.space, sc.err)
			}
			m.logger.WarnContext(ctx, "vector space search failed, degrading",
				slog.String("space", string(sc.space)),
				slog.Any("error", sc.err))
			continue
		}
		perSpace[sc.space] = sc.matches
	}

	fused := fuse(perSpace, m.cfg.Weights)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	return m.materialize(ctx, owner, fused)
}

// searchSpace embeds the query text and runs one space-local search.
func (m *MultiVectorRetriever) searchSpace(ctx context.Context, space Space, text, owner string) ([]Match, error) {
	var vec []float32
	err := Retry(ctx, m.cfg.Retry, func() error {
		var embedErr error
		vec, embedErr = m.embedder.Embed(ctx, text, space)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var matches []Match
	err = Retry(ctx, m.cfg.Retry, func() error {
		var queryErr error
		matches, queryErr = m.store.QueryBySimilarity(ctx, space, vec, owner, m.cfg.TopKPerSpace)
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	kept := matches[:0]
	for _, match := range matches {
		if match.Score >= m.cfg.MinSimilarity {
			kept = append(kept, match)
		}
	}
	return kept, nil
}

// fusedCandidate accumulates one record's cross-space evidence.
type fusedCandidate struct {
	id          string
	combined    float64
	spaceScores map[Space]float64
}

// fuse merges per-space candidate lists by weighted rank fusion.
// A record's combined score is the sum of weight * normalized score
// over the spaces it appears in, so records appearing in more spaces
// are preferred at equal per-space score. Space-local scores are
// min-max normalized within their candidate list.
//
// The returned slice is ordered best first: combined score descending,
// then appearance count descending, then ID descending (ULIDs: newer
// record first), so equal inputs always produce the same ranking.
func fuse(perSpace map[Space][]Match, weights map[Space]float64) []fusedCandidate {
	byID := make(map[string]*fusedCandidate)

	for space, matches := range perSpace {
		normalized := normalizeScores(matches)
		weight := weights[space]
		for i, match := range matches {
			cand, ok := byID[match.ID]
			if !ok {
				cand = &fusedCandidate{id: match.ID, spaceScores: make(map[Space]float64)}
				byID[match.ID] = cand
			}
			cand.spaceScores[space] = match.Score
			cand.combined += weight * normalized[i]
		}
	}

	fused := make([]fusedCandidate, 0, len(byID))
	for _, cand := range byID {
		fused = append(fused, *cand)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].combined != fused[j].combined {
			return fused[i].combined > fused[j].combined
		}
		if len(fused[i].spaceScores) != len(fused[j].spaceScores) {
			return len(fused[i].spaceScores) > len(fused[j].spaceScores)
		}
		// ULIDs sort by creation time, so descending ID order is
		// newest-first.
		return fused[i].id > fused[j].id
	})
	return fused
}

// normalizeScores min-max normalizes space-local scores to [0,1].
// A single candidate, or a list with no spread, normalizes to 1.0.
func normalizeScores(matches []Match) []float64 {
	if len(matches) == 0 {
		return nil
	}
	minScore, maxScore := matches[0].Score, matches[0].Score
	for _, m := range matches[1:] {
		if m.Score < minScore {
			minScore = m.Score
		}
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}

	out := make([]float64, len(matches))
	spread := maxScore - minScore
	for i, m := range matches {
		if spread == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (m.Score - minScore) / spread
	}
	return out
}

// materialize resolves fused candidates into full records, preserving
// rank order and skipping records that vanished under concurrent
// writes.
func (m *MultiVectorRetriever) materialize(ctx context.Context, owner string, fused []fusedCandidate) (RetrievalResult, error) {
	result := RetrievalResult{Records: make([]ScoredRecord, 0, len(fused))}
	for _, cand := range fused {
		rec, err := m.store.Get(ctx, owner, cand.id)
		if err != nil {
			m.logger.WarnContext(ctx, "candidate record disappeared",
				slog.String("record_id", cand.id),
				slog.Any("error", err))
			continue
		}
		result.Records = append(result.Records, ScoredRecord{
			Record:      rec,
			Score:       cand.combined,
			SpaceScores: cand.spaceScores,
		})
	}
	return result, nil
}
