// Package memory implements the long-term semantic memory layer for the
// conversation engine.
//
// Memories are MemoryRecords: persisted facts ("pet_name" = "Shadow") and
// conversational snippets, each embedded into three independent vector
// spaces (content, emotional tone, persona context) and namespaced by
// owner for multi-user support.
//
// Architecture:
//   - VectorStore: storage backend (embedded chromem-go store for local use)
//   - Embedder: text-to-vector conversion per vector space
//   - Router: classifies a query as temporal, semantic, or composite and
//     dispatches to the matching retriever
//   - TemporalRetriever: recency-ordered retrieval, no vector math
//   - MultiVectorRetriever: parallel similarity search across vector
//     spaces with weighted rank fusion
//   - Resolver: detects contradictory facts sharing a subject key and
//     decides which record stays active
//
// Consistency: for a given owner and subject key at most one record is
// active at any instant. The Resolver serializes writes per
// (owner, subject key) to keep that invariant under concurrency.
package memory
