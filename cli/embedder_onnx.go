//go:build onnx

package cli

import (
	"os"

	"github.com/theRealMarkCastillo/whisperengine/memory"
	"github.com/theRealMarkCastillo/whisperengine/memory/embedder/onnx"
)

// newEmbedder builds the local ONNX embedder from environment
// configuration. WHISPERENGINE_ONNX_MODEL must point at the model file.
func newEmbedder() (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     envOr("WHISPERENGINE_ONNX_MODEL", "models/all-MiniLM-L6-v2.onnx"),
		TokenizerPath: envOr("WHISPERENGINE_ONNX_TOKENIZER", "models/tokenizer.json"),
		LibraryPath:   envOr("WHISPERENGINE_ONNX_LIBRARY", ""),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
