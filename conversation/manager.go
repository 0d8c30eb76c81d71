// Package conversation implements the message pipeline: per-session
// FIFO serialization, a bounded worker pool, and a scatter-gather fan
// out over the analysis and retrieval tasks for each message.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/theRealMarkCastillo/whisperengine/analyze"
	"github.com/theRealMarkCastillo/whisperengine/core"
	"github.com/theRealMarkCastillo/whisperengine/memory"
)

// Component names for timing and partial-failure reporting.
const (
	ComponentEmotion = "emotion"
	ComponentPersona = "persona"
	ComponentMemory  = "memory"
)

// ErrEmptyMessage rejects messages with no text after trimming.
var ErrEmptyMessage = errors.New("message text is empty")

// ErrPipelineTimeout is returned when the whole pipeline misses its
// deadline, as opposed to a single task missing its own.
var ErrPipelineTimeout = errors.New("pipeline deadline exceeded")

// ErrClosed is returned for messages arriving after Close.
var ErrClosed = errors.New("conversation manager closed")

// Config tunes the pipeline.
type Config struct {
	// Workers bounds concurrent message processing across all sessions.
	Workers int

	// TaskTimeout bounds each scatter task. A task missing it degrades
	// that component; the pipeline continues.
	TaskTimeout time.Duration

	// PipelineTimeout bounds the whole scatter-gather. Missing it is a
	// hard failure.
	PipelineTimeout time.Duration

	// SessionWindow is the idle time after which a session is evicted.
	SessionWindow time.Duration

	// TurnWindow is the number of recent turns each session retains.
	TurnWindow int

	// CleanupInterval is how often idle sessions are swept.
	CleanupInterval time.Duration

	// RetrieveLimit caps memories retrieved per message.
	RetrieveLimit int

	// Retry bounds backoff for the write path's embedding and store
	// calls, mirroring the retrieval side.
	Retry memory.RetryConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		TaskTimeout:     2 * time.Second,
		PipelineTimeout: 10 * time.Second,
		SessionWindow:   30 * time.Minute,
		TurnWindow:      20,
		CleanupInterval: 5 * time.Minute,
		RetrieveLimit:   10,
		Retry:           memory.DefaultRetry,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = def.TaskTimeout
	}
	if c.PipelineTimeout <= 0 {
		c.PipelineTimeout = def.PipelineTimeout
	}
	if c.SessionWindow <= 0 {
		c.SessionWindow = def.SessionWindow
	}
	if c.TurnWindow <= 0 {
		c.TurnWindow = def.TurnWindow
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.RetrieveLimit <= 0 {
		c.RetrieveLimit = def.RetrieveLimit
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry = def.Retry
	}
	return c
}

// Deps are the collaborators the manager fans out to. All are
// injected; the manager holds no global state.
type Deps struct {
	Router   *memory.Router
	Store    memory.VectorStore
	Embedder memory.Embedder
	Resolver *memory.Resolver
	Cache    *memory.RetrievalCache
	Facts    *analyze.FactExtractor
	Emotion  analyze.EmotionAnalyzer
	Persona  analyze.PersonaAnalyzer
	Logger   *slog.Logger
}

// Context is the gathered result for one message: everything the
// response generator downstream needs.
type Context struct {
	SessionID string
	Message   core.Message

	Emotion  core.Emotion
	Persona  core.Persona
	Memories memory.RetrievalResult

	// PartialFailures names components that degraded rather than
	// contributed. Empty on a clean run.
	PartialFailures []string

	// Timings records per-component elapsed time.
	Timings map[string]time.Duration
}

// Manager runs the message pipeline.
type Manager struct {
	cfg      Config
	deps     Deps
	registry *Registry
	logger   *slog.Logger

	// slots is a counting semaphore bounding concurrent pipelines.
	slots chan struct{}

	writes sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	stopped chan struct{}
}

// NewManager creates a pipeline manager. Router, Store, Embedder and
// Facts are required; nil analyzers degrade their component on every
// message.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Router == nil {
		return nil, errors.New("conversation: router is required")
	}
	if deps.Store == nil {
		return nil, errors.New("conversation: store is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("conversation: embedder is required")
	}
	if deps.Facts == nil {
		return nil, errors.New("conversation: fact extractor is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg = cfg.normalized()

	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		registry: NewRegistry(cfg.SessionWindow, cfg.TurnWindow, deps.Logger),
		logger:   deps.Logger.With(slog.String("component", "conversation_manager")),
		slots:    make(chan struct{}, cfg.Workers),
		stopped:  make(chan struct{}),
	}
	go m.cleanupLoop()
	return m, nil
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.registry.CleanupExpired()
		case <-m.stopped:
			return
		}
	}
}

// HandleMessage runs the full pipeline for one message and returns the
// gathered context. hints steer memory retrieval. Messages within one
// session are processed strictly in arrival order; messages across
// sessions run concurrently up to the worker bound.
func (m *Manager) HandleMessage(ctx context.Context, sessionID, owner, text string, hints core.Hints) (*Context, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.mu.Unlock()

	session, g := m.registry.GetOrCreate(sessionID, owner)

	// Take the session turn before a worker slot so queued messages for
	// one session hold at most one slot between them. The turn is held
	// through the asynchronous write path, not just the gather.
	release, err := g.enter(ctx)
	if err != nil {
		return nil, fmt.Errorf("enter session queue: %w", err)
	}

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}

	msg := core.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Author:    owner,
		Text:      text,
		Timestamp: time.Now(),
	}
	session.Touch(msg.Timestamp)

	result, err := m.scatterGather(ctx, owner, msg, hints)
	if err != nil {
		release()
		return nil, err
	}

	session.AppendTurn(msg)

	// The write path keeps the session turn until it completes, so the
	// session's next message retrieves against a store that already
	// holds this one and same-session facts resolve in arrival order.
	m.writes.Add(1)
	go func() {
		defer release()
		m.persistMessage(owner, msg)
	}()

	return result, nil
}

// taskOutcome is one scatter task's report back to the gather loop.
type taskOutcome struct {
	component string
	emotion   core.Emotion
	persona   core.Persona
	memories  memory.RetrievalResult
	err       error
	elapsed   time.Duration
}

func (m *Manager) scatterGather(ctx context.Context, owner string, msg core.Message, hints core.Hints) (*Context, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PipelineTimeout)
	defer cancel()

	outcomes := make(chan taskOutcome, 3)

	go m.runTask(ctx, ComponentEmotion, outcomes, func(taskCtx context.Context, out *taskOutcome) error {
		if m.deps.Emotion == nil {
			return errors.New("no emotion analyzer configured")
		}
		emotion, err := m.deps.Emotion.AnalyzeEmotion(taskCtx, msg.Text)
		if err != nil {
			return err
		}
		out.emotion = emotion
		return nil
	})

	go m.runTask(ctx, ComponentPersona, outcomes, func(taskCtx context.Context, out *taskOutcome) error {
		if m.deps.Persona == nil {
			return errors.New("no persona analyzer configured")
		}
		persona, err := m.deps.Persona.AnalyzePersona(taskCtx, msg.Text)
		if err != nil {
			return err
		}
		out.persona = persona
		return nil
	})

	go m.runTask(ctx, ComponentMemory, outcomes, func(taskCtx context.Context, out *taskOutcome) error {
		result, err := m.deps.Router.Route(taskCtx, msg.Text, owner, hints, m.cfg.RetrieveLimit)
		if err != nil {
			return err
		}
		out.memories = result
		return nil
	})

	result := &Context{
		SessionID: msg.SessionID,
		Message:   msg,
		Timings:   make(map[string]time.Duration, 3),
	}

	for pending := 3; pending > 0; pending-- {
		select {
		case out := <-outcomes:
			result.Timings[out.component] = out.elapsed
			if out.err != nil {
				result.PartialFailures = append(result.PartialFailures, out.component)
				m.logger.Warn("pipeline component degraded",
					slog.String("session_id", msg.SessionID),
					slog.String("task", out.component),
					slog.String("error", out.err.Error()),
				)
				continue
			}
			switch out.component {
			case ComponentEmotion:
				result.Emotion = out.emotion
			case ComponentPersona:
				result.Persona = out.persona
			case ComponentMemory:
				result.Memories = out.memories
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrPipelineTimeout, ctx.Err())
		}
	}
	return result, nil
}

// runTask runs one scatter task under its own timeout. The inner
// goroutine reports through a buffered channel so an abandoned task can
// finish without leaking.
func (m *Manager) runTask(ctx context.Context, component string, outcomes chan<- taskOutcome, fn func(context.Context, *taskOutcome) error) {
	taskCtx, cancel := context.WithTimeout(ctx, m.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	out := taskOutcome{component: component}

	done := make(chan error, 1)
	go func() {
		done <- fn(taskCtx, &out)
	}()

	select {
	case err := <-done:
		out.err = err
	case <-taskCtx.Done():
		out.err = taskCtx.Err()
	}
	out.elapsed = time.Since(start)
	outcomes <- out
}

// persistMessage runs the asynchronous write path for one message:
// store the conversational snippet, then extract facts and push each
// through contradiction resolution, then invalidate the owner's
// retrieval cache. Facts are written before resolution so the
// single-active check always sees the new record.
func (m *Manager) persistMessage(owner string, msg core.Message) {
	defer m.writes.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PipelineTimeout)
	defer cancel()

	snippet := &memory.Record{
		ID:        msg.ID,
		Owner:     owner,
		Value:     msg.Text,
		Vectors:   make(map[memory.Space][]float32, len(memory.Spaces)),
		CreatedAt: msg.Timestamp,
		Status:    memory.StatusActive,
	}
	for _, space := range memory.Spaces {
		var vec []float32
		err := memory.Retry(ctx, m.cfg.Retry, func() error {
			var embedErr error
			vec, embedErr = m.deps.Embedder.Embed(ctx, msg.Text, space)
			return embedErr
		})
		if err != nil {
			m.logger.Warn("embed snippet failed",
				slog.String("session_id", msg.SessionID),
				slog.String("space", string(space)),
				slog.String("error", err.Error()),
			)
			continue
		}
		snippet.Vectors[space] = vec
	}
	if len(snippet.Vectors) > 0 {
		err := memory.Retry(ctx, m.cfg.Retry, func() error {
			return m.deps.Store.Upsert(ctx, snippet)
		})
		if err != nil {
			m.logger.Error("persist snippet failed",
				slog.String("session_id", msg.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, fact := range m.deps.Facts.Extract(msg.Text) {
		m.persistFact(ctx, owner, msg, fact)
	}

	m.deps.Cache.Invalidate(owner)
}

func (m *Manager) persistFact(ctx context.Context, owner string, msg core.Message, fact core.Fact) {
	rec := &memory.Record{
		ID:         ulid.Make().String(),
		Owner:      owner,
		SubjectKey: fact.SubjectKey,
		Value:      fact.Value,
		Vectors:    make(map[memory.Space][]float32, 1),
		CreatedAt:  msg.Timestamp,
		Status:     memory.StatusActive,
	}
	var vec []float32
	err := memory.Retry(ctx, m.cfg.Retry, func() error {
		var embedErr error
		vec, embedErr = m.deps.Embedder.Embed(ctx, fact.Value, memory.SpaceContent)
		return embedErr
	})
	if err != nil {
		m.logger.Warn("embed fact failed",
			slog.String("subject_key", fact.SubjectKey),
			slog.String("error", err.Error()),
		)
		return
	}
	rec.Vectors[memory.SpaceContent] = vec

	if m.deps.Resolver == nil {
		err := memory.Retry(ctx, m.cfg.Retry, func() error {
			return m.deps.Store.Upsert(ctx, rec)
		})
		if err != nil {
			m.logger.Error("persist fact failed",
				slog.String("subject_key", fact.SubjectKey),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	outcome, err := m.deps.Resolver.CheckAndResolve(ctx, rec)
	if err != nil {
		m.logger.Error("resolve fact failed",
			slog.String("subject_key", fact.SubjectKey),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.Debug("fact resolved",
		slog.String("subject_key", fact.SubjectKey),
		slog.String("outcome", string(outcome)),
	)
}

// Sessions returns the number of live sessions.
func (m *Manager) Sessions() int { return m.registry.Len() }

// Flush blocks until all in-flight asynchronous writes have completed.
func (m *Manager) Flush() { m.writes.Wait() }

// Close stops accepting messages, waits for in-flight writes, and
// stops the cleanup loop.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopped)
	m.writes.Wait()
	return nil
}
