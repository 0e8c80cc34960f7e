// Command idamart runs the service-quality data mart: it ingests the raw
// regulatory workbooks, consolidates the dimensional model, rebuilds the fact
// relation and materializes the entity-versus-market variance pivot.
//
// Two modes share one binary: a one-shot pipeline run that exports the pivot
// as CSV (the default), and a long-running HTTP server exposing the relations
// and a run trigger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"idamart/internal/config"
	"idamart/internal/consolidate"
	"idamart/internal/datamart"
	"idamart/internal/exporter"
	"idamart/internal/infrastructure"
	"idamart/internal/normalize"
	"idamart/internal/operations"
	transporthttp "idamart/internal/transport/http"
	"idamart/internal/variance"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	serve := flag.Bool("serve", false, "start the HTTP API server instead of a one-shot run")
	dataDir := flag.String("data", "", "input directory with .xlsx workbooks (overrides config)")
	exportDir := flag.String("export", "", "output directory for CSV exports (overrides config)")
	flag.Parse()

	if err := run(*serve, *dataDir, *exportDir); err != nil {
		slog.Error("idamart failed", "error", err)
		os.Exit(1)
	}
}

func run(serve bool, dataDir, exportDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.Paths.DataDir = dataDir
	}
	if exportDir != "" {
		cfg.Paths.ExportDir = exportDir
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	mode := variance.Mode(cfg.Pipeline.MarketVarianceMode)
	pipeline := operations.NewPipeline(operations.Config{
		Logger:             logger,
		Store:              store,
		DataDir:            cfg.Paths.DataDir,
		MarketVarianceMode: mode,
		Chains:             consolidate.DefaultChains(),
		Rules:              normalize.DefaultRules(),
	})

	if serve {
		return serveAPI(ctx, cfg, logger, store, pipeline, mode)
	}
	return runOnce(ctx, cfg, logger, pipeline)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (datamart.Store, error) {
	if cfg.Database.DSN == "" {
		logger.Info("no database DSN configured, using in-memory store")
		return datamart.NewMemoryStore(), nil
	}
	return datamart.NewPostgresStore(ctx, datamart.PostgresConfig{
		DSN:       cfg.Database.DSN,
		ChunkSize: cfg.Database.ChunkSize,
		Logger:    logger,
	})
}

// runOnce executes one pipeline run and writes the variance pivot CSV.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, pipeline *operations.Pipeline) error {
	state, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	writer := exporter.NewCSVWriter(logger, cfg.Paths.ExportDir)
	if err := writer.WriteVariancePivot("taxa_variacao.csv", state.VarianceRows, state.VarianceColumns); err != nil {
		return fmt.Errorf("export variance pivot: %w", err)
	}

	logger.Info("run finished",
		"run_id", state.Summary.RunID,
		"facts", state.Summary.FactsBuilt,
		"variance_periods", state.Summary.VariancePeriods)
	return nil
}

// serveAPI runs the HTTP server until the context is cancelled, then shuts
// down gracefully within the configured timeout.
func serveAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, store datamart.Store, pipeline *operations.Pipeline, mode variance.Mode) error {
	router := transporthttp.NewRouter(transporthttp.RouterConfig{
		Logger:   logger,
		Store:    store,
		Pipeline: pipeline,
		Variance: variance.NewBuilder(logger, store, mode),
		Server:   cfg.Server,
		Version:  version,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
