package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theRealMarkCastillo/whisperengine/analyze"
	"github.com/theRealMarkCastillo/whisperengine/conversation"
	"github.com/theRealMarkCastillo/whisperengine/memory"
	"github.com/theRealMarkCastillo/whisperengine/memory/embedder/mock"
	"github.com/theRealMarkCastillo/whisperengine/memory/store/chromem"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := chromem.New(chromem.Config{}, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := mock.New()
	memCfg := memory.DefaultConfig()
	memCfg.Retry = memory.RetryConfig{MaxAttempts: 1}

	temporal := memory.NewTemporalRetriever(store, memCfg, nil)
	multi := memory.NewMultiVectorRetriever(store, embedder, memCfg, nil)
	router := memory.NewRouter(temporal, multi, nil, nil)
	resolver := memory.NewResolver(store, embedder, memCfg, nil)

	manager, err := conversation.NewManager(conversation.DefaultConfig(), conversation.Deps{
		Router:   router,
		Store:    store,
		Embedder: embedder,
		Resolver: resolver,
		Facts:    analyze.NewFactExtractor(),
		Emotion:  analyze.NewLexicalEmotion(),
		Persona:  analyze.NewLexicalPersona(),
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	srv, err := New(Config{}, manager, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("Failed to get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_MessageRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(inboundFrame{UserID: "user1", Text: "I love this, it's great!"}); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out outboundFrame
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("Expected success, got error %q", out.Error)
	}
	if out.SessionID == "" {
		t.Error("Expected an assigned session ID")
	}
	if out.MessageID == "" {
		t.Error("Expected a message ID")
	}
	if out.Emotion == nil || out.Emotion.Primary != "joy" {
		t.Errorf("Expected joy, got %+v", out.Emotion)
	}
}

func TestServer_SessionIDEchoedBack(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(inboundFrame{SessionID: "fixed", UserID: "user1", Text: "hello"}); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out outboundFrame
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if out.SessionID != "fixed" {
		t.Errorf("Expected session ID echoed, got %q", out.SessionID)
	}
}

func TestServer_EmptyTextReportsError(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(inboundFrame{UserID: "user1", Text: "   "}); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out outboundFrame
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if out.Error == "" {
		t.Error("Expected an error frame for empty text")
	}
}

func TestServer_ShutdownIsClean(t *testing.T) {
	store, err := chromem.New(chromem.Config{}, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	embedder := mock.New()
	memCfg := memory.DefaultConfig()
	temporal := memory.NewTemporalRetriever(store, memCfg, nil)
	multi := memory.NewMultiVectorRetriever(store, embedder, memCfg, nil)
	router := memory.NewRouter(temporal, multi, nil, nil)

	manager, err := conversation.NewManager(conversation.DefaultConfig(), conversation.Deps{
		Router:   router,
		Store:    store,
		Embedder: embedder,
		Facts:    analyze.NewFactExtractor(),
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	srv, err := New(Config{Addr: "127.0.0.1:0"}, manager, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
