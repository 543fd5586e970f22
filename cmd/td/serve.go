package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskdeps/internal/config"
	"github.com/alfredjeanlab/taskdeps/internal/engine"
	"github.com/alfredjeanlab/taskdeps/internal/events"
	"github.com/alfredjeanlab/taskdeps/internal/export"
	"github.com/alfredjeanlab/taskdeps/internal/query"
	"github.com/alfredjeanlab/taskdeps/internal/server"
	"github.com/alfredjeanlab/taskdeps/internal/store"
	"github.com/alfredjeanlab/taskdeps/internal/store/memory"
	"github.com/alfredjeanlab/taskdeps/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the taskdeps HTTP and gRPC servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	PersistentPostRun: func(cmd *cobra.Command, args []string) {},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		seed, _ := cmd.Flags().GetString("seed")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(cfg, seed, logger)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (TASKDEPS_NATS_URL not set)")
		}

		eng := engine.New(st, publisher, engine.Options{
			Debounce:           cfg.RecomputeDebounce,
			Timeout:            cfg.RecomputeTimeout,
			MaxTraversal:       cfg.MaxTraversal,
			AllowLeadInversion: cfg.AllowLeadInversion,
			Logger:             logger,
		})
		qs := query.New(st, eng, query.Options{
			ExternalLagHours: cfg.ExternalLagHours,
			Logger:           logger,
		})
		srv := server.New(eng, qs, logger)
		grpcServer := server.NewGRPCServer(srv, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			eng.Close()
			publisher.Close()
			st.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startExport(cfg, st, logger)

		logger.Info("taskdeps server started",
			"store", cfg.Store,
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"debounce", cfg.RecomputeDebounce,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := eng.Close(); err != nil {
			logger.Error("error closing engine", "err", err)
		}
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore connects the configured backend. A seed file only applies to
// the memory store.
func openStore(cfg *config.Config, seed string, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		ms := memory.New()
		if seed != "" {
			projects, tasks, err := loadSeed(seed, ms)
			if err != nil {
				return nil, err
			}
			logger.Info("memory store seeded", "file", seed, "projects", projects, "tasks", tasks)
		}
		logger.Warn("using in-memory store; data is lost on exit")
		return ms, nil
	case config.StorePostgres:
		if seed != "" {
			return nil, fmt.Errorf("--seed only applies to the memory store")
		}
		return postgres.New(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// startExport starts the periodic JSONL export when a destination is
// configured. It returns nil when export is disabled.
func startExport(cfg *config.Config, src export.Source, logger *slog.Logger) *export.Scheduler {
	if cfg.ExportInterval <= 0 || cfg.ExportS3Bucket == "" {
		return nil
	}
	dest, err := export.NewS3Destination(
		context.Background(),
		cfg.ExportS3Bucket,
		cfg.ExportS3Key,
		cfg.ExportS3Region,
		cfg.ExportS3Endpoint,
	)
	if err != nil {
		logger.Error("failed to create S3 export destination", "err", err)
		return nil
	}
	logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)

	scheduler := export.NewScheduler(src, []export.Destination{dest}, cfg.ExportInterval, logger)
	scheduler.Start()
	logger.Info("export scheduler started", "interval", cfg.ExportInterval)
	return scheduler
}

func init() {
	serveCmd.Flags().String("seed", "", "TOML file of projects and tasks to load into the memory store")
}
