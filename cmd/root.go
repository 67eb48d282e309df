package cmd

import (
	"fmt"
	"os"

	"github.com/julienar/peblar-bridge/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "peblar-bridge",
	Short: "MQTT bridge for Peblar EV chargers",
	Long: `A bridge between a Peblar EV charger's local HTTP API and a
home automation platform.

The bridge authenticates against the charger, polls telemetry, user
configuration and firmware versions on independent schedules, and exposes
the results as MQTT entities with Home Assistant discovery. Charging modes
and settings can be changed over MQTT or the local control API.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

// CreateLoggerFromConfig creates a logger from configuration
func CreateLoggerFromConfig(logCfg config.LoggingConfig) (*zap.Logger, error) {
	// Parse log level
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(logCfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	// Create logger configuration
	var zapConfig zap.Config
	if logCfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	// If log file is specified, log ONLY to file
	if logCfg.File != "" {
		zapConfig.OutputPaths = []string{logCfg.File}
		zapConfig.ErrorOutputPaths = []string{logCfg.File}
	}

	return zapConfig.Build()
}
