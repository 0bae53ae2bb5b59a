package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/output"
)

var (
	cachePurgeOperation string
	cachePurgeAll       bool
	cachePurgeYes       bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and purge the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts per operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		db, err := openAdminStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		stats, err := db.CacheStats(cmd.Context())
		if err != nil {
			return err
		}
		rendered, err := output.CacheStats(format, stats)
		if err != nil {
			return err
		}
		return writeOutput(cmd, format, "cache.stats", rendered)
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		operation := strings.TrimSpace(cachePurgeOperation)
		switch {
		case operation == "" && !cachePurgeAll:
			return errors.New("must specify --operation or --all")
		case operation != "" && cachePurgeAll:
			return errors.New("--operation and --all are mutually exclusive")
		case cachePurgeAll && !cachePurgeYes:
			return errors.New("--all requires --yes")
		case operation != "" && !isOperation(operation):
			return errors.New("unknown operation: " + operation)
		}

		db, err := openAdminStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		// An empty namespace purges every operation.
		deleted, err := db.PurgeCache(cmd.Context(), operation)
		if err != nil {
			return err
		}
		rendered, err := output.Reset(format, "cached response(s)", output.ResetResult{Matched: int(deleted), Deleted: deleted})
		if err != nil {
			return err
		}
		return writeOutput(cmd, format, "cache.purge", rendered)
	},
}

func isOperation(name string) bool {
	for _, op := range core.Operations {
		if op == name {
			return true
		}
	}
	return false
}

func init() {
	addOutputFlags(cacheStatsCmd)
	addOutputFlags(cachePurgeCmd)
	cachePurgeCmd.Flags().StringVar(&cachePurgeOperation, "operation", "", "Purge one operation's cache (e.g. directions)")
	cachePurgeCmd.Flags().BoolVar(&cachePurgeAll, "all", false, "Purge every operation's cache")
	cachePurgeCmd.Flags().BoolVar(&cachePurgeYes, "yes", false, "Confirm purging every operation")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
