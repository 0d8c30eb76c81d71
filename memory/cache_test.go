package memory_test

import (
	"testing"
	"time"

	"github.com/theRealMarkCastillo/whisperengine/core"
	"github.com/theRealMarkCastillo/whisperengine/memory"
)

func cachedResult(ids ...string) memory.RetrievalResult {
	result := memory.RetrievalResult{}
	for _, id := range ids {
		result.Records = append(result.Records, memory.ScoredRecord{
			Record: &memory.Record{ID: id, Owner: "user1", Status: memory.StatusActive},
		})
	}
	return result
}

// waitAdmitted polls until ristretto's async admission lands.
func waitAdmitted(t *testing.T, cache *memory.RetrievalCache, owner, query string, hints core.Hints) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := cache.Get(owner, query, hints); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Cache entry was never admitted")
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	cache, err := memory.NewRetrievalCache(time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("user1", "favorite food", core.Hints{}, cachedResult("rec-1", "rec-2"))
	waitAdmitted(t, cache, "user1", "favorite food", core.Hints{})

	got, ok := cache.Get("user1", "favorite food", core.Hints{})
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if len(got.Records) != 2 {
		t.Errorf("Expected 2 cached records, got %d", len(got.Records))
	}
}

func TestCache_HintsPartitionEntries(t *testing.T) {
	cache, err := memory.NewRetrievalCache(time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("user1", "food", core.Hints{}, cachedResult("rec-1"))
	waitAdmitted(t, cache, "user1", "food", core.Hints{})

	if _, ok := cache.Get("user1", "food", core.Hints{PreferRecent: true}); ok {
		t.Error("Expected different hints to miss")
	}
	if _, ok := cache.Get("user2", "food", core.Hints{}); ok {
		t.Error("Expected different owner to miss")
	}
}

func TestCache_InvalidateIsPerOwner(t *testing.T) {
	cache, err := memory.NewRetrievalCache(time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("user1", "food", core.Hints{}, cachedResult("rec-1"))
	cache.Set("user2", "food", core.Hints{}, cachedResult("rec-2"))
	waitAdmitted(t, cache, "user1", "food", core.Hints{})
	waitAdmitted(t, cache, "user2", "food", core.Hints{})

	cache.Invalidate("user1")

	if _, ok := cache.Get("user1", "food", core.Hints{}); ok {
		t.Error("Expected user1's entries invalidated")
	}
	if _, ok := cache.Get("user2", "food", core.Hints{}); !ok {
		t.Error("Expected user2's entries to survive")
	}
}

func TestCache_DisabledWhenTTLZero(t *testing.T) {
	cache, err := memory.NewRetrievalCache(0)
	if err != nil {
		t.Fatalf("Expected nil cache without error, got %v", err)
	}
	if cache != nil {
		t.Fatal("Expected nil cache for zero TTL")
	}

	// All operations must be safe on the nil cache.
	cache.Set("user1", "food", core.Hints{}, cachedResult("rec-1"))
	if _, ok := cache.Get("user1", "food", core.Hints{}); ok {
		t.Error("Expected nil cache to always miss")
	}
	cache.Invalidate("user1")
	cache.Close()
}
