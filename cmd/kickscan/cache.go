package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/kickscan/internal/cache"
	"github.com/nao1215/kickscan/internal/config"
	"github.com/nao1215/kickscan/internal/kickstarter"
	"github.com/nao1215/kickscan/internal/pagination"
	"github.com/nao1215/kickscan/internal/report"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or refresh the project cache",
		Long: `The project cache keeps the metadata (name, category, ...) of every project
seen in a backer's profile so that later runs do not fetch it again.`,
	}
	cmd.PersistentFlags().String("cache", config.DefaultCachePath(), "Project cache file")

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheRefreshCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached projects per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("cache")
			if err != nil {
				return err
			}
			jsonOut, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}

			logger := setupLogger(getVerboseFlag(cmd), getLogJSONFlag(cmd))
			projects, err := cache.Open(path, cache.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to open project cache: %w", err)
			}
			defer projects.Close()

			stats := projects.Stats()
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			_, err = report.WriteCacheStats(cmd.OutOrStdout(), stats)
			return err
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

func newCacheRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the metadata of every cached project again",
		Long: `Refresh re-downloads every cached project page and replaces the stored
metadata, e.g. after projects changed category. Refetches are spaced like
listing pages (--delay plus a random part up to --delay-spread). The cache is
checkpointed every --checkpoint projects and written even if the refresh is
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			path, err := cmd.Flags().GetString("cache")
			if err != nil {
				return err
			}
			file, err := loadConfigFile(cmd)
			if err != nil {
				return err
			}
			cfg := config.NewConfig()
			cfg.ApplyFile(file)
			cfg.Verbose = getVerboseFlag(cmd)
			cfg.LogJSON = getLogJSONFlag(cmd)
			if err := applyRequestFlags(cmd, cfg); err != nil {
				return err
			}
			checkpoint, err := cmd.Flags().GetInt("checkpoint")
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.Verbose, cfg.LogJSON)
			ctx, cancel := signalContext(logger)
			defer cancel()

			client, err := newClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			projects, err := cache.Open(path, cache.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to open project cache: %w", err)
			}
			defer func() {
				if cerr := projects.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			paginator := pagination.New(client,
				pagination.WithDelay(cfg.PageDelay, cfg.PageDelaySpread),
				pagination.WithLogger(logger),
			)
			scraper := kickstarter.NewScraper(client, paginator, cfg.BaseURL, kickstarter.WithLogger(logger))

			n, err := projects.Refresh(ctx, scraper.FetchProject,
				cache.WithPause(paginator.Wait),
				cache.WithCheckpoint(checkpoint),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d of %d projects\n", n, projects.Len())
			return err
		},
	}
	cmd.Flags().Duration("delay", config.DefaultPageDelay,
		"Fixed pause between project refetches")
	cmd.Flags().Duration("delay-spread", config.DefaultPageDelaySpread,
		"Upper bound of the random pause added to --delay")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("no-cloudflare", false,
		"Disable the browser-like TLS fingerprint and headers")
	cmd.Flags().Int("checkpoint", 50,
		"Write the cache to disk after this many refreshed projects (0 disables)")
	return cmd
}
