// cmd/sync-manager/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"survey-sync/internal/common/config"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/common/observability"
)

const (
	startupRetries = 5
	startupDelay   = time.Second
)

var (
	configPath string
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "sync-manager",
	Short: "Offline-first field survey sync engine",
	Long: `sync-manager keeps the device's survey data in local storage and
synchronizes it with the remote API: reference collections are pulled
down, locally created client records are pushed up.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func buildLogger(cfg *config.Config) *zap.Logger {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	return logger.Build(logger.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// bootstrap loads configuration and wires the application. Failures are
// fatal for every command.
func bootstrap(ctx context.Context) (*app, func()) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := buildLogger(cfg)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("observability init failed, run meters disabled", zap.Error(err))
	}

	a, err := newApp(ctx, cfg, zapLog, obs)
	if err != nil {
		zapLog.Fatal("startup failed", zap.Error(err))
	}

	return a, func() {
		a.close()
		obs.Shutdown()
		_ = zapLog.Sync()
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
