//go:build !onnx

package cli

import (
	"github.com/theRealMarkCastillo/whisperengine/memory"
	"github.com/theRealMarkCastillo/whisperengine/memory/embedder/mock"
)

// newEmbedder returns the deterministic hash embedder. Builds tagged
// "onnx" swap in the local ONNX model instead.
func newEmbedder() (memory.Embedder, error) {
	return mock.New(), nil
}
