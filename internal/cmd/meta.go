package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/broker"
	"github.com/waypointhq/waypoint/internal/observability"
	"github.com/waypointhq/waypoint/internal/output"
)

var metaCaller string

var metaCmd = &cobra.Command{
	Use:   "meta <url>",
	Short: "Scrape link preview metadata for a URL",
	Long: `Run the link_metadata operation locally against the configured store.
Rate limits and the response cache apply to the --caller identity.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		return withLocalBroker(cmd.Context(), func(ctx context.Context, b *broker.Broker) error {
			m, prov, err := b.LinkMetadata(ctx, metaCaller, broker.URLInput{URL: args[0]})
			if err != nil {
				return err
			}
			rendered, err := output.LinkMetadata(format, m, prov)
			if err != nil {
				return err
			}
			return writeOutput(cmd, format, "meta."+args[0], rendered)
		})
	},
}

var routeMetaCmd = &cobra.Command{
	Use:   "route-meta <url>",
	Short: "Scrape route statistics from a komoot or AllTrails page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		return withLocalBroker(cmd.Context(), func(ctx context.Context, b *broker.Broker) error {
			m, prov, err := b.RouteMetadata(ctx, metaCaller, broker.URLInput{URL: args[0]})
			if err != nil {
				return err
			}
			rendered, err := output.RouteMetadata(format, m, prov)
			if err != nil {
				return err
			}
			return writeOutput(cmd, format, "route-meta."+args[0], rendered)
		})
	},
}

// withLocalBroker builds a broker from configuration for the duration of fn.
func withLocalBroker(ctx context.Context, fn func(ctx context.Context, b *broker.Broker) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort cleanup

	var logger core.Logger
	if verbose {
		logger = observability.CLILogger
	}
	b, err := buildBroker(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	return fn(ctx, b)
}

func init() {
	for _, c := range []*cobra.Command{metaCmd, routeMetaCmd} {
		addOutputFlags(c)
		c.Flags().StringVar(&metaCaller, "caller", "cli", "Caller identity used for rate limiting")
		rootCmd.AddCommand(c)
	}
}
