package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gradeflow/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve final grades and statistics over HTTP",
	Long: `Serve exposes the finalized grades of the configured assignments as a
read-only JSON API for the LMS upload tooling. Every request needs the
configured bearer token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Server.Validate(); err != nil {
		return err
	}

	srv := server.NewServer(
		config.Server.Address,
		config.Server.Token,
		config.Server.AllowedOrigins,
		server.NewLedgerGradebook(config),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	slog.Info("Server listening " + config.Server.Address)

	select {
	case err := <-serveErr:
		return err
	case <-cmd.Context().Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown", "error", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("Server stopped")
	return nil
}
