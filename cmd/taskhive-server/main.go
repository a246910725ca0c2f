package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskhive/internal/async"
	"taskhive/internal/config"
	"taskhive/internal/creds"
	"taskhive/internal/engine"
	"taskhive/internal/logging"
	"taskhive/internal/oauth"
	"taskhive/internal/observability"
	serverApp "taskhive/internal/server/app"
	serverHTTP "taskhive/internal/server/http"
	"taskhive/internal/session"
	"taskhive/internal/workspace"
)

var version = "dev"

func main() {
	var configFile string

	root := &cobra.Command{
		Use:     "taskhive-server",
		Short:   "Multi-agent task execution backend",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return run(cfg)
		},
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	obs, err := observability.New(observability.Config{
		Log: observability.LogConfig{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		},
		Metrics: observability.MetricsConfig{Enabled: cfg.MetricsEnabled},
		Tracing: observability.TracingConfig{
			Enabled:        cfg.TracingEnabled,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SampleRate:     cfg.TraceSampleRate,
			ServiceName:    "taskhive-server",
			ServiceVersion: version,
		},
	})
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	logging.SetDefaultBackend(obs.Logger)
	logger := logging.NewComponentLogger("Main")

	dataRoot, err := cfg.ResolveDataRoot()
	if err != nil {
		return fmt.Errorf("resolve data root: %w", err)
	}
	logger.Info("Starting taskhive server: addr=%s data_root=%s", cfg.ListenAddr, dataRoot)

	registry := session.NewRegistry(logging.NewComponentLogger("Registry"))
	pool := async.NewWorkerPool(cfg.WorkerPoolSize, logging.NewComponentLogger("Pool"))

	service := serverApp.NewChatService(serverApp.Deps{
		Registry: registry,
		Engine:   engine.NopEngine{},
		Layout:   workspace.NewLayout(dataRoot),
		Resolver: creds.NewResolver(logging.NewComponentLogger("Creds")),
		OAuth:    oauth.NewStateManager(0, logging.NewComponentLogger("OAuth")),
		Pool:     pool,
		Metrics:  obs.Metrics,
		Logger:   logging.NewComponentLogger("ChatService"),
	})

	sweeper := session.NewSweeper(registry, cfg.SweepInterval, cfg.StaleThreshold,
		logging.NewComponentLogger("Sweeper"))

	handler := serverHTTP.NewHandler(service, cfg.SSEIdleTimeout, obs.Metrics,
		logging.NewComponentLogger("HTTP"))
	router := serverHTTP.NewRouter(handler, obs, logging.NewComponentLogger("Access"),
		serverHTTP.RouterConfig{AllowedOrigins: cfg.AllowedOrigins})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  120 * time.Second,
	}

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	async.Go(logger, "sweeper", func() {
		sweeper.Run(rootCtx)
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-rootCtx.Done():
	}

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown: %v", err)
	}
	if n := service.StopAll(ctx); n > 0 {
		logger.Info("Stopped %d live sessions", n)
	}
	pool.Close()
	if err := obs.Shutdown(ctx); err != nil {
		logger.Error("Observability shutdown: %v", err)
	}

	logger.Info("Server stopped")
	return nil
}
