package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/kickscan/internal/aggregate"
	"github.com/nao1215/kickscan/internal/cache"
	"github.com/nao1215/kickscan/internal/config"
	"github.com/nao1215/kickscan/internal/database"
	"github.com/nao1215/kickscan/internal/kickstarter"
	"github.com/nao1215/kickscan/internal/model"
	"github.com/nao1215/kickscan/internal/pagination"
	"github.com/nao1215/kickscan/internal/pipeline"
	"github.com/nao1215/kickscan/internal/report"
	"github.com/nao1215/kickscan/internal/snapshot"
)

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <project-url> <backer-threshold> <category-threshold>",
		Short: "Report the projects and categories a project's backers have in common",
		Long: `Scrape lists every backer of a project, resolves each backer's public profile
and counts the other projects they backed.

Two listings are printed:
- Projects in common: projects backed by at least <backer-threshold> of the backers
- Favorite categories: categories whose share of all backings is at least
  <category-threshold> (a number between 0 and 1)

Resolved backers are written to a snapshot file. Use --from-snapshot to rerun
the aggregation on a snapshot with different thresholds without scraping again.

Examples:
  # Projects backed by 5 or more backers, categories with a 10% share or more
  kickscan scrape https://www.kickstarter.com/projects/acme/widget 5 0.1

  # Rerun a previous scrape with other thresholds
  kickscan scrape --from-snapshot ~/.local/share/kickscan/project_backers/acme_widget_1700000000.json 2 0.05

  # Markdown report written to a file
  kickscan scrape -m -o report.md https://www.kickstarter.com/projects/acme/widget 5 0.1

  # Route requests through a SOCKS5 proxy
  kickscan scrape --proxy 127.0.0.1:9050 https://www.kickstarter.com/projects/acme/widget 5 0.1`,
		Args: cobra.RangeArgs(2, 3),
		RunE: runScrapeCmd,
	}

	cmd.Flags().StringP("from-snapshot", "s", "",
		"Aggregate a previously written snapshot instead of scraping")

	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("delay", config.DefaultPageDelay,
		"Fixed pause between listing pages")
	cmd.Flags().Duration("delay-spread", config.DefaultPageDelaySpread,
		"Upper bound of the random pause added to --delay")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("no-cloudflare", false,
		"Disable the browser-like TLS fingerprint and headers")

	// Storage flags
	cmd.Flags().String("cache", config.DefaultCachePath(),
		"Project cache file")
	cmd.Flags().String("snapshot-dir", config.DefaultSnapshotDir(),
		"Directory for backer snapshots")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().Bool("timestamps", false,
		"Prefix each text report line with the report time")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed); a text summary is still printed")

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildScrapeConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runScrape(ctx, cfg, logger, cmd.OutOrStdout())
}

// buildScrapeConfig creates a Config from flags, positional arguments and the config file.
func buildScrapeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	file, err := loadConfigFile(cmd)
	if err != nil {
		return nil, err
	}
	cfg := config.NewConfig()
	cfg.ApplyFile(file)
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogJSON = getLogJSONFlag(cmd)

	if cfg.FromSnapshot, err = cmd.Flags().GetString("from-snapshot"); err != nil {
		return nil, err
	}

	thresholds := args
	switch {
	case cfg.FromSnapshot != "" && len(args) == 2:
	case cfg.FromSnapshot == "" && len(args) == 3:
		cfg.ProjectURL = args[0]
		thresholds = args[1:]
	case cfg.FromSnapshot != "":
		return nil, fmt.Errorf("with --from-snapshot, expected <backer-threshold> <category-threshold>, got %d arguments", len(args))
	default:
		return nil, fmt.Errorf("expected <project-url> <backer-threshold> <category-threshold>, got %d arguments", len(args))
	}

	if cfg.ProjectThreshold, err = strconv.Atoi(thresholds[0]); err != nil {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProjectThreshold, thresholds[0])
	}
	if cfg.CategoryThreshold, err = strconv.ParseFloat(thresholds[1], 64); err != nil {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidCategoryThreshold, thresholds[1])
	}

	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return nil, err
	}
	if err := applyRequestFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if cfg.CachePath, err = cmd.Flags().GetString("cache"); err != nil {
		return nil, err
	}
	if cfg.SnapshotDir, err = cmd.Flags().GetString("snapshot-dir"); err != nil {
		return nil, err
	}
	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	if noHistory {
		cfg.DBDir = ""
	}

	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Timestamps, err = cmd.Flags().GetBool("timestamps"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// scrapeTarget returns the project a run is about.
func scrapeTarget(cfg *config.Config) (model.ProjectRef, error) {
	if cfg.FromSnapshot != "" {
		ref, _, err := snapshot.ParseFileName(filepath.Base(cfg.FromSnapshot))
		return ref, err
	}
	return kickstarter.ParseProjectURL(cfg.ProjectURL)
}

// runScrape wires the components for one run and prints the report.
func runScrape(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) (err error) {
	target, err := scrapeTarget(cfg)
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	projects, err := cache.Open(cfg.CachePath, cache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open project cache: %w", err)
	}
	defer func() {
		if cerr := projects.Close(); cerr != nil {
			logger.Error("failed to write project cache", "path", cfg.CachePath, "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	paginator := pagination.New(client,
		pagination.WithDelay(cfg.PageDelay, cfg.PageDelaySpread),
		pagination.WithLogger(logger),
	)
	scraper := kickstarter.NewScraper(client, paginator, cfg.BaseURL, kickstarter.WithLogger(logger))
	aggregator := aggregate.New(projects, scraper.FetchProject, aggregate.WithLogger(logger))
	thresholds := aggregate.Thresholds{
		Projects:   cfg.ProjectThreshold,
		Categories: cfg.CategoryThreshold,
	}

	var store pipeline.RunStore
	if cfg.DBDir != "" {
		db, derr := database.Open(cfg.DBDir, database.DefaultOptions())
		if derr != nil {
			logger.Warn("run history disabled", "error", derr)
		} else {
			defer db.Close()
			store = db
		}
	}

	p := pipeline.New(pipeline.WithLogger(logger))
	if cfg.FromSnapshot != "" {
		p.AddSteps(pipeline.SnapshotSteps(cfg.FromSnapshot, aggregator, thresholds, store, logger)...)
	} else {
		p.AddSteps(pipeline.ScrapeSteps(scraper, scraper, cfg.SnapshotDir, aggregator, thresholds, store, logger)...)
	}

	run := model.NewRun(target)
	logger.Info("starting run", "target", target.String(), "steps", p.StepNames())
	if err := p.Execute(ctx, run); err != nil {
		return err
	}
	logger.Info("run finished",
		"target", target.String(),
		"users", len(run.Users),
		"deleted", run.DeletedUsers,
		"snapshot", run.SnapshotPath,
		"elapsed", time.Since(run.StartedAt).Round(time.Millisecond),
	)

	out, closeOut, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // report already written or failed with its own error

	textOpts := []report.SimpleWriterOption{report.WithTimestamp(cfg.Timestamps)}
	w := newReportWriter(cfg.JSONReport, cfg.MarkdownReport, out, textOpts...)
	if cfg.ReportFile != "" {
		// The listings still go to the terminal when the report goes to a file.
		w = report.NewMultiWriter(w, report.NewSimpleWriter(stdout, textOpts...))
	}
	_, err = w.Write(run.Report)
	return err
}
