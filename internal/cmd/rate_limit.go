package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/observability"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and reset persisted per-caller rate limit state",
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

// openAdminStore loads configuration and opens the state backend for an
// administration command. State kept by the memory driver lives only in the
// serving process, so the CLI sees an empty store.
func openAdminStore(ctx context.Context) (stateStore, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver == "" || cfg.Store.Driver == "memory" {
		observability.CLILogger.Warn("store.driver is memory; state is only visible inside a running server",
			zap.String("config_dir", config.DefaultConfigDir()))
	}
	return openStore(ctx, cfg)
}
