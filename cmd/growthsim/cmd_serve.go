package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/compounding/growth-backend/internal/api"
	"github.com/compounding/growth-backend/internal/metrics"
	"github.com/compounding/growth-backend/internal/simulation"
	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the simulation over HTTP",
	Long: `Starts the HTTP API. Configuration comes from the YAML file named by
CONFIG_PATH (default configs/config.yaml) with environment overrides.

The server shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector("growthsim")

	provider, closeProvider, err := newInsightProvider(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer closeProvider()

	sim, err := simulation.NewController(cfg.Growth(),
		simulation.WithTickInterval(cfg.TickInterval()),
		simulation.WithInsightProvider(provider),
		simulation.WithInsightTimeout(cfg.InsightTimeout()),
		simulation.WithLogger(log),
		simulation.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer sim.Close()

	handler := api.NewHandler(sim, m, log)

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.LoggingMiddleware(log))
	router.Use(api.MetricsMiddleware(m))
	router.Use(middleware.Recoverer)
	router.Mount("/", handler.Routes())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end when the process is told to stop
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting",
			logger.F("address", cfg.Address()),
			logger.F("tick_interval", cfg.TickInterval().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server exited")
	return nil
}
