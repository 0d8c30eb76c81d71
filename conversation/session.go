package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

// Session is one ongoing conversation for a user+context pair. It is
// never shared across session IDs.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	turns        []core.Message
	turnWindow   int
}

// Touch advances the last-activity time. It never moves backwards.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastActivity) {
		s.lastActivity = t
	}
}

// LastActivity returns the last-activity time.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// AppendTurn adds a message to the bounded recent-turn window, evicting
// the oldest turn when full. The log is append-only; turns are never
// reordered.
func (s *Session) AppendTurn(msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, msg)
	if len(s.turns) > s.turnWindow {
		s.turns = s.turns[len(s.turns)-s.turnWindow:]
	}
}

// RecentTurns returns a copy of the recent-turn window, oldest first.
func (s *Session) RecentTurns() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Message, len(s.turns))
	copy(out, s.turns)
	return out
}

// gate serializes one session's messages in strict arrival order. Each
// entrant chains onto the previous entrant's completion channel, so no
// two messages for the same session ever run concurrently and FIFO
// order is preserved even under lock contention.
type gate struct {
	mu   sync.Mutex
	tail chan struct{}
}

func newGate() *gate {
	done := make(chan struct{})
	close(done)
	return &gate{tail: done}
}

// enter blocks until it is the caller's turn. The returned release
// function must be called exactly once to pass the turn on. On context
// cancellation the turn is forwarded automatically so the chain never
// stalls.
func (g *gate) enter(ctx context.Context) (func(), error) {
	g.mu.Lock()
	turn := g.tail
	done := make(chan struct{})
	g.tail = done
	g.mu.Unlock()

	select {
	case <-turn:
		return func() { close(done) }, nil
	case <-ctx.Done():
		go func() {
			<-turn
			close(done)
		}()
		return nil, ctx.Err()
	}
}

// sessionEntry pairs a session with its serialization gate.
type sessionEntry struct {
	session *Session
	gate    *gate
}

// Registry tracks live sessions and evicts them after an idle window.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*sessionEntry
	window     time.Duration
	turnWindow int
	logger     *slog.Logger
}

// NewRegistry creates a session registry.
func NewRegistry(window time.Duration, turnWindow int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:   make(map[string]*sessionEntry),
		window:     window,
		turnWindow: turnWindow,
		logger:     logger.With(slog.String("component", "session_registry")),
	}
}

// GetOrCreate returns the session and gate for sessionID, creating
// them on the owner's first message.
func (r *Registry) GetOrCreate(sessionID, owner string) (*Session, *gate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.sessions[sessionID]; ok {
		return entry.session, entry.gate
	}

	now := time.Now()
	entry := &sessionEntry{
		session: &Session{
			ID:           sessionID,
			Owner:        owner,
			CreatedAt:    now,
			lastActivity: now,
			turnWindow:   r.turnWindow,
		},
		gate: newGate(),
	}
	r.sessions[sessionID] = entry
	r.logger.Debug("session created", slog.String("session_id", sessionID), slog.String("owner", owner))
	return entry.session, entry.gate
}

// CleanupExpired evicts sessions idle longer than the window and
// returns how many were removed.
func (r *Registry) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, entry := range r.sessions {
		if now.Sub(entry.session.LastActivity()) > r.window {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("evicted idle sessions", slog.Int("count", removed))
	}
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
