package chromem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/theRealMarkCastillo/whisperengine/memory"
	"github.com/theRealMarkCastillo/whisperengine/memory/embedder/mock"
	"github.com/theRealMarkCastillo/whisperengine/memory/store/chromem"
)

func newTestStore(t *testing.T) *chromem.Store {
	t.Helper()
	store, err := chromem.New(chromem.Config{}, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func makeRecord(t *testing.T, embedder memory.Embedder, owner, id, subjectKey, value string, createdAt time.Time) *memory.Record {
	t.Helper()
	vec, err := embedder.Embed(context.Background(), value, memory.SpaceContent)
	if err != nil {
		t.Fatalf("Failed to embed %q: %v", value, err)
	}
	return &memory.Record{
		ID:         id,
		Owner:      owner,
		SubjectKey: subjectKey,
		Value:      value,
		Vectors:    map[memory.Space][]float32{memory.SpaceContent: vec},
		CreatedAt:  createdAt,
		Status:     memory.StatusActive,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := mock.New()

	rec := makeRecord(t, embedder, "user1", "rec-1", "pet_name", "Max", time.Now())
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	got, err := store.Get(ctx, "user1", "rec-1")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if got.Value != "Max" || got.SubjectKey != "pet_name" || got.Status != memory.StatusActive {
		t.Errorf("Round trip mismatch: got %+v", got)
	}

	// Identical content must come back as the top similarity hit.
	queryVec, err := embedder.Embed(ctx, "Max", memory.SpaceContent)
	if err != nil {
		t.Fatalf("Failed to embed query: %v", err)
	}
	matches, err := store.QueryBySimilarity(ctx, memory.SpaceContent, queryVec, "user1", 5)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	if matches[0].ID != "rec-1" {
		t.Errorf("Expected rec-1, got %s", matches[0].ID)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("Expected near-identical similarity, got %f", matches[0].Score)
	}
}

func TestStore_GetUnknownID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "user1", "missing")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := mock.New()

	rec := makeRecord(t, embedder, "user1", "rec-1", "pet_name", "Max", time.Now())
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	if _, err := store.Get(ctx, "user2", "rec-1"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Expected user2 to not see user1's record, got %v", err)
	}

	queryVec, _ := embedder.Embed(ctx, "Max", memory.SpaceContent)
	matches, err := store.QueryBySimilarity(ctx, memory.SpaceContent, queryVec, "user2", 5)
	if err != nil {
		t.Fatalf("Failed to query as user2: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Expected no matches for user2, got %d", len(matches))
	}
}

func TestStore_UpdateStatusFiltersSimilarity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := mock.New()

	rec := makeRecord(t, embedder, "user1", "rec-1", "pet_name", "Max", time.Now())
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := store.UpdateStatus(ctx, "user1", "rec-1", memory.StatusSuperseded, "rec-2"); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	got, err := store.Get(ctx, "user1", "rec-1")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if got.Status != memory.StatusSuperseded || got.SupersededBy != "rec-2" {
		t.Errorf("Expected superseded by rec-2, got status=%s supersededBy=%s", got.Status, got.SupersededBy)
	}

	// Superseded records must not surface in similarity results.
	queryVec, _ := embedder.Embed(ctx, "Max", memory.SpaceContent)
	matches, err := store.QueryBySimilarity(ctx, memory.SpaceContent, queryVec, "user1", 5)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Expected superseded record filtered out, got %d matches", len(matches))
	}
}

func TestStore_ScrollByRecencyOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := mock.New()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*memory.Record{
		makeRecord(t, embedder, "user1", "rec-a", "", "oldest snippet", base),
		makeRecord(t, embedder, "user1", "rec-c", "", "middle snippet", base.Add(time.Minute)),
		// Same timestamp as rec-c; lower ID must sort first among ties.
		makeRecord(t, embedder, "user1", "rec-b", "", "tied snippet", base.Add(time.Minute)),
		makeRecord(t, embedder, "user1", "rec-d", "", "newest snippet", base.Add(2*time.Minute)),
	}
	for _, rec := range records {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Failed to upsert %s: %v", rec.ID, err)
		}
	}

	got, err := store.ScrollByRecency(ctx, "user1", "", 10)
	if err != nil {
		t.Fatalf("Failed to scroll: %v", err)
	}
	want := []string{"rec-d", "rec-b", "rec-c", "rec-a"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(got))
	}
	for i, rec := range got {
		if rec.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], rec.ID)
		}
	}

	// Same call twice must yield the same order.
	again, err := store.ScrollByRecency(ctx, "user1", "", 10)
	if err != nil {
		t.Fatalf("Failed to scroll again: %v", err)
	}
	for i := range got {
		if got[i].ID != again[i].ID {
			t.Errorf("Ordering not deterministic at position %d: %s vs %s", i, got[i].ID, again[i].ID)
		}
	}
}

func TestStore_ScrollByRecencyTopicFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := mock.New()

	base := time.Now()
	records := []*memory.Record{
		makeRecord(t, embedder, "user1", "rec-1", "pet_name", "Max", base),
		makeRecord(t, embedder, "user1", "rec-2", "location", "Berlin", base.Add(time.Second)),
		makeRecord(t, embedder, "user1", "rec-3", "", "told a joke about pets", base.Add(2*time.Second)),
	}
	for _, rec := range records {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Failed to upsert %s: %v", rec.ID, err)
		}
	}

	got, err := store.ScrollByRecency(ctx, "user1", "pet", 10)
	if err != nil {
		t.Fatalf("Failed to scroll with filter: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 pet records, got %d", len(got))
	}
	if got[0].ID != "rec-3" || got[1].ID != "rec-1" {
		t.Errorf("Expected [rec-3 rec-1], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestStore_ListActiveBySubjectKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := mock.New()

	base := time.Now()
	if err := store.Upsert(ctx, makeRecord(t, embedder, "user1", "rec-1", "pet_name", "Max", base)); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	superseded := makeRecord(t, embedder, "user1", "rec-2", "pet_name", "Rex", base.Add(time.Second))
	superseded.Status = memory.StatusSuperseded
	superseded.SupersededBy = "rec-1"
	if err := store.Upsert(ctx, superseded); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := store.Upsert(ctx, makeRecord(t, embedder, "user1", "rec-3", "location", "Berlin", base)); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	actives, err := store.ListActiveBySubjectKey(ctx, "user1", "pet_name")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(actives) != 1 {
		t.Fatalf("Expected 1 active record, got %d", len(actives))
	}
	if actives[0].ID != "rec-1" {
		t.Errorf("Expected rec-1, got %s", actives[0].ID)
	}
}

func TestStore_CallerCannotMutateStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := mock.New()

	rec := makeRecord(t, embedder, "user1", "rec-1", "pet_name", "Max", time.Now())
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	got, err := store.Get(ctx, "user1", "rec-1")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	got.Value = "mutated"
	got.Status = memory.StatusDisputed

	fresh, err := store.Get(ctx, "user1", "rec-1")
	if err != nil {
		t.Fatalf("Failed to get again: %v", err)
	}
	if fresh.Value != "Max" || fresh.Status != memory.StatusActive {
		t.Errorf("Stored record was mutated through a returned copy: %+v", fresh)
	}
}

func TestStore_PersistenceSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := mock.New()

	store, err := chromem.New(chromem.Config{PersistPath: dir}, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	older := makeRecord(t, embedder, "user1", "rec-1", "pet_name", "Max", time.Now().Add(-time.Minute))
	newer := makeRecord(t, embedder, "user1", "rec-2", "pet_name", "Shadow", time.Now())
	for _, rec := range []*memory.Record{older, newer} {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Failed to upsert %s: %v", rec.ID, err)
		}
	}
	if err := store.UpdateStatus(ctx, "user1", "rec-1", memory.StatusSuperseded, "rec-2"); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	reopened, err := chromem.New(chromem.Config{PersistPath: dir}, nil)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.Get(ctx, "user1", "rec-1")
	if err != nil {
		t.Fatalf("Failed to get after reopen: %v", err)
	}
	if got.Status != memory.StatusSuperseded || got.SupersededBy != "rec-2" {
		t.Errorf("Expected supersession chain to survive reopen, got status=%s supersededBy=%s",
			got.Status, got.SupersededBy)
	}

	actives, err := reopened.ListActiveBySubjectKey(ctx, "user1", "pet_name")
	if err != nil {
		t.Fatalf("Failed to list actives after reopen: %v", err)
	}
	if len(actives) != 1 || actives[0].ID != "rec-2" {
		t.Fatalf("Expected only rec-2 active after reopen, got %v", actives)
	}

	// The collections reload with their vectors; similarity hits must
	// still resolve against the restored index.
	queryVec, err := embedder.Embed(ctx, "Shadow", memory.SpaceContent)
	if err != nil {
		t.Fatalf("Failed to embed query: %v", err)
	}
	matches, err := reopened.QueryBySimilarity(ctx, memory.SpaceContent, queryVec, "user1", 5)
	if err != nil {
		t.Fatalf("Failed to query after reopen: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "rec-2" {
		t.Errorf("Expected rec-2 as the only active match after reopen, got %v", matches)
	}
}
