package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/waypointhq/waypoint/internal/errors"
	"github.com/waypointhq/waypoint/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that configuration loads, the state store answers and the broker can be wired.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))
		log.Info("✅ Version information available")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg, err := loadConfig(ctx)
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		log.Info("✅ Configuration valid")

		st, err := openStore(ctx, cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "State store unavailable", err)
			return
		}
		defer st.Close() // nolint:errcheck // best-effort cleanup
		if err := pingStore(ctx, st); err != nil {
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "State store ping failed", err)
			return
		}
		log.Info("✅ State store reachable", zap.String("driver", cfg.Store.Driver))

		if _, err := buildBroker(ctx, cfg, st, nil); err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Broker wiring failed", err)
			return
		}
		log.Info("✅ Broker wiring complete")

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
