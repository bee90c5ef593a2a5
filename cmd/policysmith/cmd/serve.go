package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/solatis/policysmith/internal/core/api"
	"github.com/solatis/policysmith/internal/core/db"
	"github.com/solatis/policysmith/internal/core/metrics"
	"github.com/solatis/policysmith/internal/core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC policy engine service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
	serveCmd.Flags().String("metrics-addr", "", "prometheus listen address (host:port); empty disables /metrics")
	serveCmd.Flags().String("data-dir", "./data", "directory for the documents log")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var store api.Store
	if cfg.Database.URL != "" {
		database, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		statuses, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return fmt.Errorf("failed to check migrations: %w", err)
		}
		for _, s := range statuses {
			if !s.Applied {
				return fmt.Errorf("migration %s not applied - run 'policysmith migrate' first", s.ID)
			}
		}

		s, err := db.NewStore(database)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}
		store = s
	} else {
		logger.Warn("no database configured; requests must carry their own inputs")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(registry)

	service, err := api.NewPolicyEngineService(store, cfg, collector, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Server, service, collector, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting policysmith", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
		return grpcServer.Shutdown(ctx)
	}
}
