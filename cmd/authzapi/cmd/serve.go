package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/J41RO/MeStore-sub006/internal/middleware"
	"github.com/J41RO/MeStore-sub006/internal/server"
	"github.com/J41RO/MeStore-sub006/internal/services/authz"
	"github.com/J41RO/MeStore-sub006/internal/services/catalog"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the access control API server",
	Long: `Starts the HTTP server exposing permission checks, grant lifecycle,
and administration endpoints, plus the background expired-grant sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Telemetry first so every later component hooks into the
		// global providers. An empty OTLP endpoint makes this a no-op.
		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Printf("WARNING: telemetry shutdown: %v", err)
			}
		}()

		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		// Load the permission catalog before taking traffic so the first
		// request never races the bootstrap.
		if cfg.CatalogPath != "" {
			definitions, err := catalog.ParseFile(cfg.CatalogPath)
			if err != nil {
				return fmt.Errorf("failed to parse catalog %s: %w", cfg.CatalogPath, err)
			}
			if _, err := eng.svc.BootstrapCatalog(ctx, definitions); err != nil {
				return fmt.Errorf("failed to bootstrap catalog: %w", err)
			}
		}

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("failed to create server metrics: %w", err)
		}
		metricsMiddleware, err := middleware.NewMetricsMiddleware(serverMetrics)
		if err != nil {
			return fmt.Errorf("failed to create metrics middleware: %w", err)
		}

		if cfg.AuthTokenSecret == "" {
			log.Printf("WARNING: AUTH_TOKEN_SECRET not set, trusting X-Actor-ID headers (development mode)")
		}

		handlers, err := server.NewAccessHandlers(eng.svc, eng.audit)
		if err != nil {
			return fmt.Errorf("failed to create handlers: %w", err)
		}
		router := server.NewRouter(server.RouterOptions{
			Handlers: handlers,
			Middleware: []func(http.Handler) http.Handler{
				metricsMiddleware,
				middleware.NewActorMiddleware(cfg.AuthTokenSecret),
			},
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		// Background sweep keeps grant states honest even when no admin
		// ever calls /admin/sweep.
		sweepCtx, cancelSweep := context.WithCancel(ctx)
		defer cancelSweep()
		go func() {
			ticker := time.NewTicker(cfg.Sweep.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					runSweep(sweepCtx, eng.svc)
				case <-sweepCtx.Done():
					return
				}
			}
		}()

		// Wait for interrupt signal or an on-demand sweep signal
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// SIGHUP triggers an immediate sweep (for tests and manual runs)
		sweepNow := make(chan os.Signal, 1)
		signal.Notify(sweepNow, syscall.SIGHUP)

		for {
			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)

			case sig := <-sweepNow:
				log.Printf("Received signal %v, sweeping expired grants", sig)
				runSweep(ctx, eng.svc)

			case sig := <-shutdown:
				log.Printf("Received signal %v, shutting down gracefully", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				log.Printf("Server stopped")
				return nil
			}
		}
	},
}

// runSweep runs one sweep pass with a bounded deadline. Failures are
// logged, never fatal; the next tick tries again.
func runSweep(ctx context.Context, svc authz.Service) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if _, err := svc.SweepExpired(ctx); err != nil {
		log.Printf("ERROR: grant sweep failed: %v", err)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
