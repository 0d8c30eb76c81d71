package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/theRealMarkCastillo/whisperengine/memory"
)

func addTimed(store *stubStore, owner, id, value string, createdAt time.Time) {
	store.add(&memory.Record{
		ID:        id,
		Owner:     owner,
		Value:     value,
		CreatedAt: createdAt,
		Status:    memory.StatusActive,
	})
}

func TestTemporal_NewestFirstDeterministic(t *testing.T) {
	store := newStubStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	addTimed(store, "user1", "rec-a", "first", base)
	addTimed(store, "user1", "rec-c", "tied later", base.Add(time.Minute))
	addTimed(store, "user1", "rec-b", "tied earlier id", base.Add(time.Minute))

	retriever := memory.NewTemporalRetriever(store, noRetryConfig(), nil)

	want := []string{"rec-b", "rec-c", "rec-a"}
	for run := 0; run < 3; run++ {
		result, err := retriever.RetrieveRecent(context.Background(), "user1", "", 10)
		if err != nil {
			t.Fatalf("Run %d: failed to retrieve: %v", run, err)
		}
		got := result.IDs()
		if len(got) != len(want) {
			t.Fatalf("Run %d: expected %d records, got %d", run, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Run %d position %d: expected %s, got %s", run, i, want[i], got[i])
			}
		}
	}
}

func TestTemporal_LimitApplied(t *testing.T) {
	store := newStubStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		addTimed(store, "user1", string(rune('a'+i)), "snippet", base.Add(time.Duration(i)*time.Second))
	}

	retriever := memory.NewTemporalRetriever(store, noRetryConfig(), nil)
	result, err := retriever.RetrieveRecent(context.Background(), "user1", "", 2)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(result.Records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(result.Records))
	}
}

func TestTemporal_EmptyOwnerNotAnError(t *testing.T) {
	retriever := memory.NewTemporalRetriever(newStubStore(), noRetryConfig(), nil)
	result, err := retriever.RetrieveRecent(context.Background(), "nobody", "", 10)
	if err != nil {
		t.Fatalf("Expected empty result, got error: %v", err)
	}
	if !result.Empty() {
		t.Errorf("Expected no records, got %v", result.IDs())
	}
}

func TestTemporal_TransientStoreFailureRetried(t *testing.T) {
	store := newStubStore()
	addTimed(store, "user1", "rec-1", "snippet", time.Now())
	store.scrollFailures = 2
	store.scrollErr = memory.ErrStoreUnavailable

	cfg := memory.DefaultConfig()
	cfg.Retry = memory.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	retriever := memory.NewTemporalRetriever(store, cfg, nil)

	result, err := retriever.RetrieveRecent(context.Background(), "user1", "", 10)
	if err != nil {
		t.Fatalf("Expected retries to succeed, got %v", err)
	}
	if len(result.Records) != 1 {
		t.Errorf("Expected 1 record after retry, got %d", len(result.Records))
	}
}

func TestTemporal_ExhaustedRetriesSurfaceError(t *testing.T) {
	store := newStubStore()
	store.scrollFailures = 10
	store.scrollErr = memory.ErrStoreUnavailable

	cfg := memory.DefaultConfig()
	cfg.Retry = memory.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	retriever := memory.NewTemporalRetriever(store, cfg, nil)

	_, err := retriever.RetrieveRecent(context.Background(), "user1", "", 10)
	if !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}
