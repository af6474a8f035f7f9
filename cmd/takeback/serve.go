package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/takeback/takeback/internal/engine"
	"github.com/takeback/takeback/internal/server"
)

var serveListen string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard",
		Long: `Start the HTTP server for the takeback dashboard: live run progress,
run statistics, and history. The dashboard only observes; runs are
started from the CLI.

By default, the server listens on the address configured in the config
file (default: 127.0.0.1:8080). Use --listen to override.`,
		Example: `  takeback serve
  takeback serve --listen 0.0.0.0:9000`,
		RunE: serveRun,
	}

	cmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (host:port)")

	return cmd
}

func serveRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	listen := serveListen
	if listen == "" {
		listen = globalCfg.Server.Listen
	}

	rebuilder := engine.NewRebuilder(globalCfg, globalStore, logger)
	srv := server.NewServer(rebuilder, globalStore, globalCfg, logger)

	errChan := make(chan error, 1)
	go func() {
		fmt.Printf("Dashboard listening on http://%s/dashboard\n", listen)
		if err := srv.Start(listen); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		fmt.Println("Server stopped gracefully")
	}

	return nil
}
