package main

import (
	"os"

	"github.com/theRealMarkCastillo/whisperengine/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
