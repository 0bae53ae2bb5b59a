package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, provider and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== Waypoint Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Store Driver:   "+cfg.Store.Driver, zap.String("store_driver", cfg.Store.Driver))
		switch {
		case strings.EqualFold(cfg.Store.Driver, "redis"):
			log.Info("  Redis Addr:     " + cfg.Redis.Addr)
		case strings.TrimSpace(cfg.Store.URL) != "":
			log.Info("  Store URL:      " + cfg.Store.URL)
		case strings.TrimSpace(cfg.Store.Path) != "":
			log.Info("  Store Path:     " + cfg.Store.Path)
		}
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info(fmt.Sprintf("  Cache Enabled:  %t", cfg.Cache.Enabled))
		log.Info(fmt.Sprintf("  Rate Margin:    %.2f", cfg.RateLimitMargin))
		log.Info(fmt.Sprintf("  API Keys:       %d", len(cfg.APIKeyCallers())))
		log.Info("  Caller Header:  " + orUnset(cfg.Auth.CallerHeader))
		log.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("")

		up := cfg.Upstream
		log.Info("Providers:")
		log.Info("  Directions:     " + strings.Join(up.Directions.Providers, ", "))
		log.Info("  Geocode:        " + strings.Join(up.Geocode.Providers, ", "))
		log.Info("  Google Key:     " + secretState(up.Google.APIKey))
		log.Info("  Mapbox Token:   " + secretState(up.Mapbox.Token))
		log.Info("  Terrain:        " + strings.Join(up.Mapbox.TerrainSources, ", "))
		log.Info(fmt.Sprintf("  Overpass:       %d endpoint(s)", len(up.Overpass.Endpoints)))
		log.Info("  OpenRouter Key: " + secretState(up.OpenRouter.APIKey))
		log.Info("  Models:         " + strings.Join(up.OpenRouter.Models, ", "))
		log.Info("  Photo Bucket:   " + orUnset(cfg.Blob.Bucket))
		log.Info("")

		log.Info("Operations:")
		policies := cfg.CachePolicies()
		for _, op := range core.Operations {
			limit := cfg.RateLimits[op]
			policy := policies[op]
			log.Info(fmt.Sprintf("  %-15s burst %d/%s sustained %d/%s cache %s/%d",
				op, limit.BurstMax, limit.BurstWindow, limit.SustainedMax, limit.SustainedWindow,
				policy.TTL, policy.MaxEntries))
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func secretState(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(not set)"
	}
	return "(set)"
}

func orUnset(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(unset)"
	}
	return v
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
