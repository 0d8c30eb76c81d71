package cli

import (
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/theRealMarkCastillo/whisperengine/analyze"
	"github.com/theRealMarkCastillo/whisperengine/conversation"
	"github.com/theRealMarkCastillo/whisperengine/memory"
	"github.com/theRealMarkCastillo/whisperengine/memory/store/chromem"
)

// app bundles the wired pipeline so commands can tear it down cleanly.
type app struct {
	manager *conversation.Manager
	store   memory.VectorStore
	cache   *memory.RetrievalCache
	logger  *slog.Logger
}

// buildApp wires the full stack: store, embedder, retrievers, router,
// resolver, analyzers, and the pipeline manager.
func buildApp() (*app, error) {
	logger := newLogger()
	memCfg := memory.DefaultConfig()

	store, err := chromem.New(chromem.Config{PersistPath: persistPath}, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder()
	if err != nil {
		store.Close()
		return nil, err
	}

	cache, err := memory.NewRetrievalCache(memCfg.CacheTTL)
	if err != nil {
		store.Close()
		return nil, err
	}

	temporal := memory.NewTemporalRetriever(store, memCfg, logger)
	multi := memory.NewMultiVectorRetriever(store, embedder, memCfg, logger)
	router := memory.NewRouter(temporal, multi, cache, logger)
	resolver := memory.NewResolver(store, embedder, memCfg, logger)

	emotion, persona := newAnalyzers(logger)

	manager, err := conversation.NewManager(conversation.DefaultConfig(), conversation.Deps{
		Router:   router,
		Store:    store,
		Embedder: embedder,
		Resolver: resolver,
		Cache:    cache,
		Facts:    analyze.NewFactExtractor(),
		Emotion:  emotion,
		Persona:  persona,
		Logger:   logger,
	})
	if err != nil {
		cache.Close()
		store.Close()
		return nil, err
	}

	return &app{
		manager: manager,
		store:   store,
		cache:   cache,
		logger:  logger,
	}, nil
}

// newAnalyzers picks LLM analyzers when a model and API key are
// available, lexical scorers otherwise.
func newAnalyzers(logger *slog.Logger) (analyze.EmotionAnalyzer, analyze.PersonaAnalyzer) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if llmModel == "" || apiKey == "" {
		return analyze.NewLexicalEmotion(), analyze.NewLexicalPersona()
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	llm := analyze.NewLLMAnalyzer(&client, llmModel, logger)
	return llm, llm
}

func (a *app) close() {
	a.manager.Close()
	a.cache.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
}
