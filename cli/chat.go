package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive REPL against the pipeline",
		Long:  "Reads messages from stdin, runs each through the pipeline, and prints the gathered context.",
		Run:   runChat,
	}

	cmd.Flags().String("user", "local", "User ID for the session")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, _ []string) {
	user, _ := cmd.Flags().GetString("user")

	application, err := buildApp()
	if err != nil {
		exitErr("build pipeline", err)
	}
	defer application.close()

	sessionID := uuid.New().String()
	fmt.Printf("session %s (user %s). Type a message, or /quit.\n", sessionID, user)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		result, err := application.manager.HandleMessage(cmd.Context(), sessionID, user, line, core.Hints{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
			continue
		}

		fmt.Printf("emotion: %s (intensity %.2f, valence %+.2f)\n",
			result.Emotion.Primary, result.Emotion.Intensity, result.Emotion.Valence)
		fmt.Printf("persona: %s (formality %.2f)\n", result.Persona.Style, result.Persona.Formality)
		if len(result.Memories.Records) > 0 {
			fmt.Println("memories:")
			for _, scored := range result.Memories.Records {
				label := scored.Record.SubjectKey
				if label == "" {
					label = "snippet"
				}
				fmt.Printf("  [%s] %s (%.3f)\n", label, scored.Record.Value, scored.Score)
			}
		}
		if len(result.PartialFailures) > 0 {
			fmt.Printf("degraded: %s\n", strings.Join(result.PartialFailures, ", "))
		}

		// Let the write path land before the next retrieval so the REPL
		// behaves like one serialized conversation.
		application.manager.Flush()
	}
}
