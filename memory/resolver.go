package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Outcome is the resolver's decision for one fact-bearing write.
type Outcome string

const (
	// OutcomeAccepted: the new record was stored without displacing an
	// incompatible prior fact. Either no active record existed, or the
	// existing value was judged equivalent and stays authoritative.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeSupersededPrior: the prior active record held an
	// incompatible value and was superseded by the new record.
	OutcomeSupersededPrior Outcome = "superseded_prior"

	// OutcomeDisputed: multiple active records were found for the
	// subject key, an invariant violation. The resolver healed it
	// most-recent-wins and reports the dispute for visibility.
	OutcomeDisputed Outcome = "disputed"
)

// Resolver detects semantically conflicting facts that share a subject
// key and decides which record stays active.
//
// All resolution for one (owner, subject key) runs inside a keyed
// critical section, so two concurrent writes can never both observe
// "no active record" and both be accepted. Conversational facts are
// assumed to evolve, so the policy is most-recent-wins rather than
// full audit resolution.
type Resolver struct {
	store    VectorStore
	embedder Embedder
	cfg      *Config
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResolver creates a contradiction resolver.
func NewResolver(store VectorStore, embedder Embedder, cfg *Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    store,
		embedder: embedder,
		cfg:      cfg.normalized(),
		logger:   logger.With(slog.String("component", "contradiction_resolver")),
		locks:    make(map[string]*sync.Mutex),
	}
}

// subjectLock returns the mutex guarding one (owner, subject key).
func (r *Resolver) subjectLock(owner, subjectKey string) *sync.Mutex {
	key := owner + "\x00" + subjectKey
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

// CheckAndResolve persists rec and resolves any contradiction with the
// currently active record for (rec.Owner, rec.SubjectKey). rec must
// carry its vectors; the resolver assigns its status.
func (r *Resolver) CheckAndResolve(ctx context.Context, rec *Record) (Outcome, error) {
	if rec == nil || rec.SubjectKey == "" {
		return "", fmt.Errorf("check and resolve: record with subject key required")
	}

	lock := r.subjectLock(rec.Owner, rec.SubjectKey)
	lock.Lock()
	defer lock.Unlock()

	var actives []*Record
	err := Retry(ctx, r.cfg.Retry, func() error {
		var listErr error
		actives, listErr = r.store.ListActiveBySubjectKey(ctx, rec.Owner, rec.SubjectKey)
		return listErr
	})
	if err != nil {
		return "", fmt.Errorf("list active records: %w", err)
	}

	switch len(actives) {
	case 0:
		rec.Status = StatusActive
		if err := r.upsert(ctx, rec); err != nil {
			return "", err
		}
		return OutcomeAccepted, nil

	case 1:
		return r.resolveAgainst(ctx, actives[0], rec)

	default:
		return r.healViolation(ctx, actives, rec)
	}
}

// resolveAgainst decides between one existing active record and the new
// one by value similarity in the content space.
func (r *Resolver) resolveAgainst(ctx context.Context, prior, rec *Record) (Outcome, error) {
	similarity, err := r.valueSimilarity(ctx, prior, rec)
	if err != nil {
		return "", err
	}

	if similarity >= r.cfg.ContradictionThreshold {
		// Equivalent values. Store the new record but keep the prior
		// authoritative, avoiding duplicate active facts.
		rec.Status = StatusSuperseded
		rec.SupersededBy = prior.ID
		if err := r.upsert(ctx, rec); err != nil {
			return "", err
		}
		r.logger.DebugContext(ctx, "equivalent fact folded into existing record",
			slog.String("subject_key", rec.SubjectKey),
			slog.String("kept", prior.ID),
			slog.Float64("similarity", similarity))
		return OutcomeAccepted, nil
	}

	// Incompatible values: most recent wins.
	rec.Status = StatusActive
	if err := r.upsert(ctx, rec); err != nil {
		return "", err
	}
	if err := r.supersede(ctx, prior, rec.ID); err != nil {
		return "", err
	}
	r.logger.InfoContext(ctx, "contradiction resolved, prior fact superseded",
		slog.String("owner", rec.Owner),
		slog.String("subject_key", rec.SubjectKey),
		slog.String("superseded", prior.ID),
		slog.String("active", rec.ID),
		slog.Float64("similarity", similarity))
	return OutcomeSupersededPrior, nil
}

// healViolation repairs a multiple-active invariant violation: the most
// recent record among the priors and the incoming one stays active,
// everything else is superseded by it. CreatedAt decides, ID breaks
// ties, so the heal is deterministic regardless of which write
// triggered it. Reported as disputed since the state indicates a race
// or bug upstream.
func (r *Resolver) healViolation(ctx context.Context, actives []*Record, rec *Record) (Outcome, error) {
	violation := &InvariantViolationError{
		Owner:      rec.Owner,
		SubjectKey: rec.SubjectKey,
		ActiveIDs:  make([]string, 0, len(actives)),
	}
	for _, prior := range actives {
		violation.ActiveIDs = append(violation.ActiveIDs, prior.ID)
	}
	r.logger.ErrorContext(ctx, "healing invariant violation",
		slog.String("owner", rec.Owner),
		slog.String("subject_key", rec.SubjectKey),
		slog.Any("error", violation))

	winner := rec
	for _, prior := range actives {
		if prior.CreatedAt.After(winner.CreatedAt) ||
			(prior.CreatedAt.Equal(winner.CreatedAt) && prior.ID > winner.ID) {
			winner = prior
		}
	}

	if winner == rec {
		rec.Status = StatusActive
	} else {
		rec.Status = StatusSuperseded
		rec.SupersededBy = winner.ID
	}
	if err := r.upsert(ctx, rec); err != nil {
		return "", err
	}

	// Supersede priors oldest-first for a deterministic chain.
	sort.Slice(actives, func(i, j int) bool {
		if !actives[i].CreatedAt.Equal(actives[j].CreatedAt) {
			return actives[i].CreatedAt.Before(actives[j].CreatedAt)
		}
		return actives[i].ID < actives[j].ID
	})
	for _, prior := range actives {
		if prior == winner {
			continue
		}
		if err := r.supersede(ctx, prior, winner.ID); err != nil {
			return "", err
		}
	}
	return OutcomeDisputed, nil
}

// valueSimilarity compares the two records' values in the content
// space, embedding a value only when its vector is missing.
func (r *Resolver) valueSimilarity(ctx context.Context, prior, rec *Record) (float64, error) {
	priorVec, err := r.contentVector(ctx, prior)
	if err != nil {
		return 0, err
	}
	recVec, err := r.contentVector(ctx, rec)
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(priorVec, recVec), nil
}

func (r *Resolver) contentVector(ctx context.Context, rec *Record) ([]float32, error) {
	if vec, ok := rec.Vectors[SpaceContent]; ok && len(vec) > 0 {
		return vec, nil
	}
	var vec []float32
	err := Retry(ctx, r.cfg.Retry, func() error {
		var embedErr error
		vec, embedErr = r.embedder.Embed(ctx, rec.Value, SpaceContent)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed value for %s: %w", rec.ID, err)
	}
	return vec, nil
}

func (r *Resolver) upsert(ctx context.Context, rec *Record) error {
	err := Retry(ctx, r.cfg.Retry, func() error {
		return r.store.Upsert(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Resolver) supersede(ctx context.Context, prior *Record, byID string) error {
	err := Retry(ctx, r.cfg.Retry, func() error {
		return r.store.UpdateStatus(ctx, prior.Owner, prior.ID, StatusSuperseded, byID)
	})
	if err != nil {
		return fmt.Errorf("supersede record %s: %w", prior.ID, err)
	}
	return nil
}
