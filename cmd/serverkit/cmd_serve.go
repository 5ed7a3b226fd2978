package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
	"github.com/shashiranjanraj/serverkit/pkg/server"
)

const shutdownTimeout = 10 * time.Second

// serverkit serve: assemble the server and run until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server described by the settings file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		raw, err := loadSettings(configPath)
		if err != nil {
			return err
		}
		raw, err = resolve(ctx, raw)
		if err != nil {
			return err
		}

		srv, err := server.Create(ctx, raw)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
		case <-srv.Done():
			return srv.Err()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
