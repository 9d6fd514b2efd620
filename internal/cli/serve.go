package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/cohortsim/internal/server"
	"github.com/lazypower/cohortsim/internal/sink"
)

var (
	serveDB        string
	serveMaxAgents int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDB, "db", "", "run database path")
	serveCmd.Flags().IntVar(&serveMaxAgents, "max-agents", 0, "largest run accepted over HTTP (0 for the default)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := openDB(cfg, serveDB)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := server.Options{
		Logger:     logger,
		Defaults:   &cfg.Simulation,
		MaxAgents:  serveMaxAgents,
		RequestLog: true,
	}
	if cfg.Sink.URL != "" {
		client, err := sink.NewClient(cfg.Sink.URL, cfg.Sink.BatchSize, cfg.Sink.Timeout)
		if err != nil {
			return err
		}
		opts.Sink = client
		fmt.Fprintf(os.Stderr, "  sink: %s\n", cfg.Sink.URL)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		if !client.Healthy(ctx) {
			fmt.Fprintf(os.Stderr, "warning: sink %s is not reachable, pushes will fail until it is\n", cfg.Sink.URL)
		}
		cancel()
	}

	srv := server.New(db, VersionString(), opts)
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "cohortsim serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
