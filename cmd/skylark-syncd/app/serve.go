package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylarkhq/skylark-sync/internal/api"
	"github.com/skylarkhq/skylark-sync/internal/config"
	"github.com/skylarkhq/skylark-sync/internal/netgate"
	"github.com/skylarkhq/skylark-sync/internal/providers"
	"github.com/skylarkhq/skylark-sync/internal/providers/fake"
	"github.com/skylarkhq/skylark-sync/internal/status"
	"github.com/skylarkhq/skylark-sync/internal/sync"
	"github.com/skylarkhq/skylark-sync/internal/sync/state"
	"github.com/skylarkhq/skylark-sync/internal/telemetry"
	"github.com/skylarkhq/skylark-sync/pkg/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync daemon",
	Long: `Start the sync daemon and its REST API.

The daemon requires a configuration file (--config) listing the
accounts to synchronize, the orchestration tuning, the network probe
and the state persistence backend (local files or Postgres).

This binary ships with a simulated groupware backend; the real mail and
domain providers are wired in by the embedding application. Use
--simulate-latency to give the simulated backend realistic round-trip
times when exercising the API.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", ":8380", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	serveCmd.Flags().Duration("simulate-latency", 0, "Round-trip latency of the simulated backend")
	serveCmd.Flags().Bool("sync-on-start", true, "Trigger a sync for every account at startup")

	for _, flag := range []string{"address", "config", "simulate-latency", "sync-on-start"} {
		if err := viper.BindPFlag(flag, serveCmd.Flags().Lookup(flag)); err != nil {
			slog.Error("Failed to bind flag", "flag", flag, "error", err)
			os.Exit(1)
		}
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	tuning, err := cfg.Sync.Resolve()
	if err != nil {
		return fmt.Errorf("invalid sync settings: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath, "accounts", len(cfg.Accounts))

	backend, err := status.NewBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create status persistence: %w", err)
	}
	defer backend.Close()

	stateSvc := state.NewAccountStateService(backend.Persistence)
	if err := stateSvc.Initialize(ctx, cfg.Accounts); err != nil {
		return fmt.Errorf("failed to initialize sync state: %w", err)
	}

	// Metrics
	meterProvider, err := telemetry.NewMeterProvider(ctx,
		telemetry.WithMetricsEnabled(cfg.Telemetry.Enabled),
		telemetry.WithMeterEndpoint(cfg.Telemetry.Endpoint),
		telemetry.WithMeterInsecure(cfg.Telemetry.Insecure),
		telemetry.WithMeterServiceVersion(versions.GetVersionInfo().Version),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	// Simulated groupware backend; the embedding application replaces
	// this with real providers
	mail := &fake.MailProvider{Latency: viper.GetDuration("simulate-latency")}
	widget := &fake.WidgetRefresher{}

	orchestrator := sync.NewOrchestrator(
		tuning,
		stateSvc,
		netgate.New(cfg.Network),
		mail,
		mail,
		fake.AllDomains(),
		sync.WithMetrics(metrics),
		sync.WithWidgetRefresher(widget),
	)

	if viper.GetBool("sync-on-start") {
		for _, account := range cfg.Accounts {
			orchestrator.StartSyncIfNeeded(ctx, providers.AccountID(account.ID))
		}
	}

	router := api.NewServer(orchestrator, stateSvc)

	server := &http.Server{
		Addr:        address,
		Handler:     router,
		ReadTimeout: serverReadTimeout,
		// Manual syncs block the request until the umbrella timeout
		WriteTimeout: tuning.ManualTimeout + 30*time.Second,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to stop sync tasks", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}
	if shutdowner, ok := meterProvider.(interface{ Shutdown(context.Context) error }); ok {
		if err := shutdowner.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down meter provider", "error", err)
		}
	}

	slog.Info("Shutdown complete")
	return nil
}
