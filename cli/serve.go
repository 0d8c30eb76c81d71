package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theRealMarkCastillo/whisperengine/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gateway",
		Long:  "Starts the conversation pipeline behind a websocket gateway at /ws with a health endpoint at /healthz.",
		Run:   runServe,
	}

	cmd.Flags().String("addr", ":8090", "Listen address")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, _ []string) {
	addr, _ := cmd.Flags().GetString("addr")

	application, err := buildApp()
	if err != nil {
		exitErr("build pipeline", err)
	}
	defer application.close()

	srv, err := server.New(server.Config{Addr: addr}, application.manager, application.logger)
	if err != nil {
		exitErr("build server", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case sig := <-stop:
		application.logger.Info("shutting down", slog.String("signal", sig.String()))
		if err := srv.Shutdown(context.Background()); err != nil {
			application.logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	case err := <-errCh:
		if err != nil {
			exitErr("serve", err)
		}
	}
}
