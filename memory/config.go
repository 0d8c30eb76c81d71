package memory

import "time"

// Config holds the tunables for retrieval and contradiction resolution.
type Config struct {
	// MinSimilarity is the minimum similarity floor for semantic
	// retrieval [0.0-1.0]. Candidates below the floor are dropped; a
	// space that yields nothing above it returns no candidates rather
	// than low-confidence noise.
	//
	// Note: tiny local models (all-MiniLM-L6-v2) produce lower scores
	// than production embedders, so the default is conservative.
	MinSimilarity float64

	// ContradictionThreshold is the value-similarity cutoff for the
	// resolver: two values for the same subject key with similarity
	// below the threshold are judged incompatible.
	ContradictionThreshold float64

	// Weights are the rank-fusion weights per vector space. They are
	// applied to normalized space-local scores and need not sum to 1.
	Weights map[Space]float64

	// TopKPerSpace is the per-space candidate list size before fusion.
	TopKPerSpace int

	// Retry bounds backoff at embedding and store call sites.
	Retry RetryConfig

	// CacheTTL is the lifetime of read-through cached retrieval
	// results. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultConfig returns the defaults used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		MinSimilarity:          0.25,
		ContradictionThreshold: 0.80,
		Weights: map[Space]float64{
			SpaceContent: 0.60,
			SpaceEmotion: 0.25,
			SpacePersona: 0.15,
		},
		TopKPerSpace: 20,
		Retry:        DefaultRetry,
		CacheTTL:     30 * time.Second,
	}
}

// normalized fills zero-valued fields from the defaults.
func (c *Config) normalized() *Config {
	if c == nil {
		return DefaultConfig()
	}
	def := DefaultConfig()
	out := *c
	if out.MinSimilarity <= 0 {
		out.MinSimilarity = def.MinSimilarity
	}
	if out.ContradictionThreshold <= 0 {
		out.ContradictionThreshold = def.ContradictionThreshold
	}
	if len(out.Weights) == 0 {
		out.Weights = def.Weights
	}
	if out.TopKPerSpace <= 0 {
		out.TopKPerSpace = def.TopKPerSpace
	}
	if out.Retry.MaxAttempts < 1 {
		out.Retry = def.Retry
	}
	return &out
}
