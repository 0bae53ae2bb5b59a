package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/output"
)

var (
	rateLimitListAll      bool
	rateLimitListEndpoint string
	rateLimitListPrefix   string
	rateLimitListCaller   string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := core.RateLimitQuery{
			All:      rateLimitListAll,
			Endpoint: strings.TrimSpace(rateLimitListEndpoint),
			Prefix:   strings.TrimSpace(rateLimitListPrefix),
			CallerID: strings.TrimSpace(rateLimitListCaller),
		}
		if query.Validate() != nil {
			query.All = true
		}

		db, err := openAdminStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.RateLimits(format, entries)
		if err != nil {
			return err
		}
		return writeOutput(cmd, format, "rate-limit.list", rendered)
	},
}

func init() {
	addOutputFlags(rateLimitListCmd)
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List every record (default when no filter is given)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListEndpoint, "endpoint", "", "List records for one operation (exact match)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List operations with matching prefix")
	rateLimitListCmd.Flags().StringVar(&rateLimitListCaller, "caller", "", "List records for one caller")
}
