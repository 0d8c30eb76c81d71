package memory_test

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/theRealMarkCastillo/whisperengine/memory"
)

// stubStore is an in-memory VectorStore with canned similarity results
// and injectable failures, so tests control scores and ordering
// precisely.
type stubStore struct {
	mu      sync.Mutex
	records map[string]*memory.Record

	// matches are the canned per-space similarity results returned for
	// any query vector.
	matches map[memory.Space][]memory.Match

	// queryErrs fails QueryBySimilarity for the given space.
	queryErrs map[memory.Space]error

	// scrollFailures counts down: while positive, ScrollByRecency fails
	// with scrollErr and decrements.
	scrollFailures int
	scrollErr      error
}

func newStubStore() *stubStore {
	return &stubStore{
		records:   make(map[string]*memory.Record),
		matches:   make(map[memory.Space][]memory.Match),
		queryErrs: make(map[memory.Space]error),
	}
}

func (s *stubStore) add(rec *memory.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Owner+"/"+rec.ID] = rec.Clone()
}

func (s *stubStore) Upsert(_ context.Context, rec *memory.Record) error {
	s.add(rec)
	return nil
}

func (s *stubStore) Get(_ context.Context, owner, id string) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[owner+"/"+id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *stubStore) UpdateStatus(_ context.Context, owner, id string, status memory.Status, supersededBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[owner+"/"+id]
	if !ok {
		return memory.ErrNotFound
	}
	rec.Status = status
	rec.SupersededBy = supersededBy
	return nil
}

func (s *stubStore) QueryBySimilarity(_ context.Context, space memory.Space, _ []float32, _ string, topK int) ([]memory.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queryErrs[space]; err != nil {
		return nil, err
	}
	matches := s.matches[space]
	if len(matches) > topK {
		matches = matches[:topK]
	}
	out := make([]memory.Match, len(matches))
	copy(out, matches)
	return out, nil
}

func (s *stubStore) ScrollByRecency(_ context.Context, owner, topicFilter string, limit int) ([]*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrollFailures > 0 {
		s.scrollFailures--
		return nil, s.scrollErr
	}

	var out []*memory.Record
	filter := strings.ToLower(topicFilter)
	for key, rec := range s.records {
		if !strings.HasPrefix(key, owner+"/") || rec.Status != memory.StatusActive {
			continue
		}
		if filter != "" &&
			!strings.Contains(strings.ToLower(rec.SubjectKey), filter) &&
			!strings.Contains(strings.ToLower(rec.Value), filter) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) ListActiveBySubjectKey(_ context.Context, owner, subjectKey string) ([]*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*memory.Record
	for key, rec := range s.records {
		if strings.HasPrefix(key, owner+"/") && rec.SubjectKey == subjectKey && rec.Status == memory.StatusActive {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *stubStore) Close() error { return nil }

// stubEmbedder returns a fixed unit vector for any input.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string, _ memory.Space) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubEmbedder) Dimensions() int { return 3 }
