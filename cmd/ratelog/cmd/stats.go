package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	ratelogclient "github.com/Sentinel-Gate/ratelog/pkg/client"
)

var (
	statsServer  string
	statsTimeout time.Duration
	statsSites   int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statement counters of a running ratelog server",
	Long: `Fetch /health and /stats from a running ratelog server and print the
statement counters together with the noisiest sites.

The server address defaults to RATELOG_SERVER_ADDR or http://127.0.0.1:9464.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsServer, "server", "", "server base URL")
	statsCmd.Flags().DurationVar(&statsTimeout, "timeout", 5*time.Second, "request timeout")
	statsCmd.Flags().IntVar(&statsSites, "sites", 10, "number of sites to list, by suppressed count")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	opts := []ratelogclient.Option{ratelogclient.WithTimeout(statsTimeout)}
	if statsServer != "" {
		opts = append(opts, ratelogclient.WithServerAddr(statsServer))
	}
	client := ratelogclient.NewClient(opts...)

	ctx, cancel := context.WithTimeout(cmd.Context(), statsTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if health == nil {
		return fmt.Errorf("health check against %s: %w", client.ServerAddr(), err)
	}
	stats, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetch stats from %s: %w", client.ServerAddr(), err)
	}
	printStats(cmd.OutOrStdout(), health, stats, statsSites)
	return nil
}

func printStats(w io.Writer, health *ratelogclient.Health, stats *ratelogclient.Stats, limit int) {
	fmt.Fprintf(w, "status:     %s\n", health.Status)
	fmt.Fprintf(w, "emitted:    %d\n", stats.Emitted)
	fmt.Fprintf(w, "suppressed: %d (%.1f%%)\n", stats.Suppressed, 100*stats.SuppressionRatio())
	fmt.Fprintf(w, "unlimited:  %d\n", stats.Unlimited)
	fmt.Fprintf(w, "skipped:    %d\n", stats.Skipped)

	if len(stats.Sites) == 0 || limit <= 0 {
		return
	}
	sites := make([]string, 0, len(stats.Sites))
	for site := range stats.Sites {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool {
		a, b := stats.Sites[sites[i]], stats.Sites[sites[j]]
		if a.Suppressed != b.Suppressed {
			return a.Suppressed > b.Suppressed
		}
		return sites[i] < sites[j]
	})
	if len(sites) > limit {
		sites = sites[:limit]
	}
	fmt.Fprintln(w, "sites:")
	for _, site := range sites {
		c := stats.Sites[site]
		fmt.Fprintf(w, "  %s emitted=%d suppressed=%d\n", site, c.Emitted, c.Suppressed)
	}
}
