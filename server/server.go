// Package server exposes the conversation pipeline over a websocket
// gateway. Each connection is one client; a client may interleave
// multiple sessions over the same connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/theRealMarkCastillo/whisperengine/conversation"
	"github.com/theRealMarkCastillo/whisperengine/core"
)

// Config tunes the gateway.
type Config struct {
	// Addr is the listen address, e.g. ":8090".
	Addr string

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8090",
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// inboundFrame is one client message. SessionID may be empty on the
// first message; the server assigns one and echoes it back.
type inboundFrame struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`

	// PreferRecent and TopicFilter steer memory retrieval.
	PreferRecent bool   `json:"prefer_recent,omitempty"`
	TopicFilter  string `json:"topic_filter,omitempty"`
}

// outboundFrame is the gathered context for one message, or an error.
type outboundFrame struct {
	SessionID       string           `json:"session_id"`
	MessageID       string           `json:"message_id,omitempty"`
	Emotion         *emotionPayload  `json:"emotion,omitempty"`
	Persona         *personaPayload  `json:"persona,omitempty"`
	Memories        []memoryPayload  `json:"memories,omitempty"`
	PartialFailures []string         `json:"partial_failures,omitempty"`
	TimingsMS       map[string]int64 `json:"timings_ms,omitempty"`
	Error           string           `json:"error,omitempty"`
}

type emotionPayload struct {
	Primary   string  `json:"primary"`
	Intensity float64 `json:"intensity"`
	Valence   float64 `json:"valence"`
}

type personaPayload struct {
	Style     string   `json:"style"`
	Formality float64  `json:"formality"`
	Markers   []string `json:"markers,omitempty"`
}

type memoryPayload struct {
	ID         string  `json:"id"`
	SubjectKey string  `json:"subject_key,omitempty"`
	Value      string  `json:"value"`
	Score      float64 `json:"score"`
}

// Server is the websocket gateway.
type Server struct {
	cfg      Config
	manager  *conversation.Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader

	httpSrv *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a gateway over the given pipeline manager.
func New(cfg Config, manager *conversation.Manager, logger *slog.Logger) (*Server, error) {
	if manager == nil {
		return nil, errors.New("server: manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		manager: manager,
		logger:  logger.With(slog.String("component", "server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s, nil
}

// ListenAndServe blocks serving the gateway until Shutdown or a listen
// error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", slog.String("addr", s.cfg.Addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve blocks serving on an existing listener. Useful for tests and
// for binding port 0.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("gateway listening", slog.String("addr", ln.Addr().String()))
	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes the listener, closes live connections, and waits for
// in-flight pipeline writes.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.manager.Sessions())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.trackConn(conn, true)
	defer func() {
		s.trackConn(conn, false)
		conn.Close()
	}()

	s.logger.Debug("client connected", slog.String("remote", conn.RemoteAddr().String()))

	// One writer goroutine per connection; gorilla connections allow at
	// most one concurrent writer.
	outbound := make(chan outboundFrame, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range outbound {
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				s.logger.Debug("write failed", slog.String("error", err.Error()))
				return
			}
		}
	}()
	defer func() {
		close(outbound)
		<-writerDone
	}()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("client disconnected", slog.String("error", err.Error()))
			}
			return
		}
		if frame.SessionID == "" {
			frame.SessionID = uuid.New().String()
		}

		// Dispatch without blocking the read loop; per-session ordering
		// is the pipeline's job, not the transport's.
		inflight.Add(1)
		go func(frame inboundFrame) {
			defer inflight.Done()
			s.dispatch(r.Context(), frame, outbound, writerDone)
		}(frame)
	}
}

func (s *Server) dispatch(ctx context.Context, frame inboundFrame, outbound chan<- outboundFrame, writerDone <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("dispatch panic", slog.Any("panic", rec))
		}
	}()

	result, err := s.manager.HandleMessage(ctx, frame.SessionID, frame.UserID, frame.Text, core.Hints{
		PreferRecent: frame.PreferRecent,
		TopicFilter:  frame.TopicFilter,
	})
	if err != nil {
		s.send(outbound, writerDone, outboundFrame{
			SessionID: frame.SessionID,
			Error:     err.Error(),
		})
		return
	}

	out := outboundFrame{
		SessionID: result.SessionID,
		MessageID: result.Message.ID,
		Emotion: &emotionPayload{
			Primary:   result.Emotion.Primary,
			Intensity: result.Emotion.Intensity,
			Valence:   result.Emotion.Valence,
		},
		Persona: &personaPayload{
			Style:     result.Persona.Style,
			Formality: result.Persona.Formality,
			Markers:   result.Persona.Markers,
		},
		PartialFailures: result.PartialFailures,
		TimingsMS:       make(map[string]int64, len(result.Timings)),
	}
	for component, elapsed := range result.Timings {
		out.TimingsMS[component] = elapsed.Milliseconds()
	}
	for _, scored := range result.Memories.Records {
		out.Memories = append(out.Memories, memoryPayload{
			ID:         scored.Record.ID,
			SubjectKey: scored.Record.SubjectKey,
			Value:      scored.Record.Value,
			Score:      scored.Score,
		})
	}
	s.send(outbound, writerDone, out)
}

// send queues a frame for the connection writer, dropping it when the
// writer has already exited so dispatchers never block on a dead
// connection.
func (s *Server) send(outbound chan<- outboundFrame, writerDone <-chan struct{}, frame outboundFrame) {
	select {
	case outbound <- frame:
	case <-writerDone:
	}
}

func (s *Server) trackConn(conn *websocket.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}
