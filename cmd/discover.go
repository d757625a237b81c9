package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var (
		sources []string
		maxHubs int
		delay   time.Duration
		resolve bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Runs one discovery pass and prints the run summary",
		Long: `Runs the configured discoverers (hub, sitemap, archive), deduplicates their
URLs, and records new documents and provenance in the catalog. Flags left
unset fall back to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts := appInstance.DiscoveryOptions()
			for _, name := range sources {
				source, err := discovery.ParseSource(name)
				if err != nil {
					return err
				}
				opts.Sources = append(opts.Sources, source)
			}
			flags := cmd.Flags()
			if flags.Changed("max-hubs") {
				opts.MaxHubs = maxHubs
			}
			if flags.Changed("delay") {
				if delay < 0 {
					return fmt.Errorf("--delay must be >= 0, got %s", delay)
				}
				opts.Delay = delay
			}
			if flags.Changed("resolve-redirects") {
				opts.ResolveRedirects = resolve
			}

			result, err := appInstance.Orchestrator().RunDiscovery(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("run discovery: %w", err)
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "discoverers to run (hub-scrape, sitemap, wayback); default all configured")
	cmd.Flags().IntVar(&maxHubs, "max-hubs", 0, "maximum hub pages to fetch")
	cmd.Flags().DurationVar(&delay, "delay", 0, "minimum spacing between requests to one host")
	cmd.Flags().BoolVar(&resolve, "resolve-redirects", false, "resolve redirects for new documents")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
