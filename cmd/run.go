package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/julienar/peblar-bridge/internal/api"
	"github.com/julienar/peblar-bridge/internal/bridge"
	"github.com/julienar/peblar-bridge/internal/config"
	"github.com/julienar/peblar-bridge/internal/mqtt"
	"github.com/julienar/peblar-bridge/internal/peblar"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the charger bridge",
	Long: `Connect to the configured Peblar charger and begin bridging.

The bridge will:
- Authenticate against the charger and enable its local REST API
- Poll telemetry, user configuration and firmware versions
- Register the charger and its entities with Home Assistant via MQTT
- Accept control commands via MQTT and the local HTTP API`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	// Load configuration first
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create logger from config
	logger, err := CreateLoggerFromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	// Initialize Datadog tracing if enabled
	if cfg.Datadog.Enabled {
		tracer.Start(
			tracer.WithService(cfg.Datadog.ServiceName),
			tracer.WithEnv(cfg.Datadog.Environment),
			tracer.WithAgentAddr(fmt.Sprintf("%s:%d", cfg.Datadog.AgentHost, cfg.Datadog.AgentPort)),
		)
		defer tracer.Stop()
		logger.Info("Datadog tracing initialized",
			zap.String("service", cfg.Datadog.ServiceName),
			zap.String("environment", cfg.Datadog.Environment),
		)
	}

	logger.Info("Starting Peblar bridge")
	logger.Info("Configuration loaded",
		zap.String("charger", cfg.Charger.Host),
		zap.Duration("meter_interval", cfg.Intervals.Meter),
		zap.Duration("user_config_interval", cfg.Intervals.UserConfig),
		zap.Duration("version_interval", cfg.Intervals.Version),
		zap.Bool("datadog_enabled", cfg.Datadog.Enabled),
	)

	ctx := context.Background()

	// The MQTT topics embed the charger serial, so the charger identity is
	// needed before the broker connection. A throwaway client fetches it;
	// the bridge builds its own session afterwards.
	probe, err := peblar.New(cfg.Charger.Host)
	if err != nil {
		return fmt.Errorf("failed to create charger client: %w", err)
	}
	if err := probe.Login(ctx, cfg.Charger.Password); err != nil {
		return classifySetupError(err)
	}
	info, err := probe.SystemInformation(ctx)
	if err != nil {
		return classifySetupError(err)
	}

	mqttHandler, err := mqtt.NewHandler(cfg.MQTT, bridge.DeviceID(info), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MQTT handler: %w", err)
	}
	defer mqttHandler.Close()

	// Bring up the bridge: login, coordinators, device registration,
	// entity platforms.
	runtime, err := bridge.Setup(ctx, cfg, mqttHandler, logger)
	if err != nil {
		return classifySetupError(err)
	}
	defer runtime.Close()

	// Start API server for control commands
	apiAddr := fmt.Sprintf("localhost:%d", cfg.API.Port)
	apiServer := api.NewServer(runtime, logger, apiAddr, cfg.API.Auth)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", zap.Error(err))
		}
	}()

	logger.Info("Peblar bridge is running. Press Ctrl+C to stop.")
	logger.Info("API server listening", zap.String("url", fmt.Sprintf("http://%s", apiAddr)))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Received shutdown signal")

	// Shutdown bridge
	logger.Info("Shutting down bridge")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", zap.Error(err))
	}

	logger.Info("Peblar bridge stopped")
	return nil
}

// classifySetupError turns bridge and client errors into operator-facing
// messages that say whether to retry or to fix credentials.
func classifySetupError(err error) error {
	var authErr *peblar.AuthError
	if errors.Is(err, bridge.ErrAuthRequired) || errors.As(err, &authErr) {
		return fmt.Errorf("charger rejected the configured password, update charger.password: %w", err)
	}
	if errors.Is(err, bridge.ErrNotReady) {
		return fmt.Errorf("charger is not ready, retry later: %w", err)
	}

	var connErr *peblar.ConnError
	if errors.As(err, &connErr) {
		return fmt.Errorf("charger is not reachable, retry later: %w", err)
	}

	return err
}
