// Package cli implements the whisperengine CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	persistPath string
	llmModel    string
	logLevel    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "whisperengine",
	Short: "Conversational memory and analysis pipeline",
	Long: "Runs the conversational intelligence pipeline: per-message emotion and persona\n" +
		"analysis, multi-vector memory retrieval, and contradiction-resolved fact storage.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&persistPath, "data", "", "Persistence path for the vector store (default: in-memory)")
	RootCmd.PersistentFlags().StringVar(&llmModel, "model", "", "Anthropic model for LLM analyzers (default: lexical analyzers; requires ANTHROPIC_API_KEY)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
