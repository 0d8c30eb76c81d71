// Package chromem implements memory.VectorStore on top of chromem-go,
// a pure Go embedded vector database.
//
// chromem-go only answers similarity queries, so the store keeps the
// authoritative record payloads (status, supersession chain, creation
// times) in an in-process index guarded by a RWMutex, and uses one
// chromem collection per (owner, vector space) for the similarity math.
// With a persist path configured the index is snapshotted to disk on
// every mutation, next to the collections chromem persists itself, so
// statuses survive a restart along with the vectors.
package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/theRealMarkCastillo/whisperengine/memory"
)

// Config configures the store.
type Config struct {
	// PersistPath, when non-empty, stores collections on disk so
	// memories survive restarts. Empty keeps everything in memory.
	PersistPath string
}

// indexFile holds the record index inside the persist directory.
// chromem skips plain files when it reloads its collections.
const indexFile = "records.json"

// Store is the embedded VectorStore implementation.
type Store struct {
	db          *chromem.DB
	logger      *slog.Logger
	persistPath string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	records     map[string]map[string]*memory.Record // owner -> id -> record
}

// New creates a chromem-backed store.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var db *chromem.DB
	if cfg.PersistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &Store{
		db:          db,
		logger:      logger.With(slog.String("component", "chromem_store")),
		persistPath: cfg.PersistPath,
		collections: make(map[string]*chromem.Collection),
		records:     make(map[string]map[string]*memory.Record),
	}
	if s.persistPath != "" {
		if err := s.loadIndex(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// loadIndex restores the record index written by a previous run.
// chromem reloads the vector collections itself; the index carries
// the statuses, supersession chains and timestamps they cannot.
func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.persistPath, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read record index: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("decode record index: %w", err)
	}
	return nil
}

// saveIndexLocked snapshots the record index, writing a temp file and
// renaming it so a crash never leaves a torn index. Caller holds mu.
func (s *Store) saveIndexLocked() error {
	if s.persistPath == "" {
		return nil
	}
	data, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("encode record index: %w", err)
	}
	tmp := filepath.Join(s.persistPath, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write record index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.persistPath, indexFile)); err != nil {
		return fmt.Errorf("replace record index: %w", err)
	}
	return nil
}

// collectionName namespaces one owner's vectors in one space.
func collectionName(owner string, space memory.Space) string {
	if owner == "" {
		return fmt.Sprintf("global_%s", space)
	}
	return fmt.Sprintf("owner_%s_%s", owner, space)
}

// getOrCreateCollection returns the collection for (owner, space).
func (s *Store) getOrCreateCollection(owner string, space memory.Space) (*chromem.Collection, error) {
	name := collectionName(owner, space)

	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring the write lock.
	if col, exists := s.collections[name]; exists {
		return col, nil
	}

	// GetOrCreateCollection reopens a collection chromem loaded from
	// disk instead of discarding it.
	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// Upsert stores or replaces a record together with its embeddings.
func (s *Store) Upsert(ctx context.Context, rec *memory.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("upsert: record with id required")
	}

	// Index first so similarity hits always resolve to a payload.
	s.mu.Lock()
	byID, ok := s.records[rec.Owner]
	if !ok {
		byID = make(map[string]*memory.Record)
		s.records[rec.Owner] = byID
	}
	byID[rec.ID] = rec.Clone()
	err := s.saveIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for space, vec := range rec.Vectors {
		if len(vec) == 0 {
			continue
		}
		col, err := s.getOrCreateCollection(rec.Owner, space)
		if err != nil {
			return err
		}
		doc := chromem.Document{
			ID:        rec.ID,
			Content:   rec.Value,
			Embedding: vec,
			Metadata: map[string]string{
				"owner":       rec.Owner,
				"subject_key": rec.SubjectKey,
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document to %s space: %w", space, err)
		}
	}

	s.logger.DebugContext(ctx, "record upserted",
		slog.String("record_id", rec.ID),
		slog.String("owner", rec.Owner),
		slog.String("subject_key", rec.SubjectKey),
		slog.Int("spaces", len(rec.Vectors)))
	return nil
}

// Get retrieves a record by owner and ID.
func (s *Store) Get(ctx context.Context, owner, id string) (*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[owner][id]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", owner, id, memory.ErrNotFound)
	}
	return rec.Clone(), nil
}

// UpdateStatus transitions a record's status in place.
func (s *Store) UpdateStatus(ctx context.Context, owner, id string, status memory.Status, supersededBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[owner][id]
	if !ok {
		return fmt.Errorf("update status %s/%s: %w", owner, id, memory.ErrNotFound)
	}
	rec.Status = status
	rec.SupersededBy = supersededBy
	return s.saveIndexLocked()
}

// QueryBySimilarity returns the topK closest active records in one
// vector space, best first. Records that are no longer active by the
// time the similarity hits resolve are dropped.
func (s *Store) QueryBySimilarity(ctx context.Context, space memory.Space, queryVec []float32, owner string, topK int) ([]memory.Match, error) {
	if !space.Valid() {
		return nil, fmt.Errorf("query similarity: unknown space %q", space)
	}
	if topK <= 0 {
		return nil, nil
	}

	col, err := s.getOrCreateCollection(owner, space)
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= collection size; shrink until the
	// query fits or the collection turns out to be empty.
	var results []chromem.Result
	for limit := topK; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, queryVec, limit, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]memory.Match, 0, len(results))
	for _, result := range results {
		rec, ok := s.records[owner][result.ID]
		if !ok || rec.Status != memory.StatusActive {
			continue
		}
		matches = append(matches, memory.Match{ID: result.ID, Score: float64(result.Similarity)})
	}
	return matches, nil
}

// ScrollByRecency returns active records newest first, ties broken
// ascending by ID. No vector math involved.
func (s *Store) ScrollByRecency(ctx context.Context, owner, topicFilter string, limit int) ([]*memory.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := strings.ToLower(topicFilter)
	var out []*memory.Record
	for _, rec := range s.records[owner] {
		if rec.Status != memory.StatusActive {
			continue
		}
		if filter != "" && !matchesTopic(rec, filter) {
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

// ListActiveBySubjectKey returns all active records for the subject
// key, oldest first.
func (s *Store) ListActiveBySubjectKey(ctx context.Context, owner, subjectKey string) ([]*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*memory.Record
	for _, rec := range s.records[owner] {
		if rec.Status != memory.StatusActive || rec.SubjectKey != subjectKey {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close releases resources. chromem keeps in-memory collections, so
// there is nothing to flush beyond what the persistent DB already
// wrote.
func (s *Store) Close() error {
	return nil
}

// matchesTopic reports whether the record's subject key or value
// contains the lowercased filter.
func matchesTopic(rec *memory.Record, filter string) bool {
	return strings.Contains(strings.ToLower(rec.SubjectKey), filter) ||
		strings.Contains(strings.ToLower(rec.Value), filter)
}

// isInsufficientDocsError checks whether err means the collection has
// fewer documents than requested.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
