package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/kickscan/internal/config"
	"github.com/nao1215/kickscan/internal/database"
	"github.com/nao1215/kickscan/internal/kickstarter"
	"github.com/nao1215/kickscan/internal/model"
	"github.com/nao1215/kickscan/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [project-url]",
		Short: "List past runs and compare their reports",
		Long: `History shows the runs recorded by 'kickscan scrape'.

Without arguments it lists every project that has recorded runs. With a
project URL it lists that project's runs, newest first. With --compare it
shows how the projects in common changed between two runs:
- projects that entered or left the listing
- projects whose common-backer count changed

Examples:
  # List projects with recorded runs
  kickscan history

  # List runs of one project
  kickscan history https://www.kickstarter.com/projects/acme/widget

  # Compare the latest two runs
  kickscan history --compare https://www.kickstarter.com/projects/acme/widget

  # Compare the latest run with run 3
  kickscan history --compare --with-run 3 https://www.kickstarter.com/projects/acme/widget`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Bool("compare", false, "Compare the latest run with the previous one")
	cmd.Flags().Int64P("with-run", "r", 0, "Compare the latest run with this run id instead")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")
	cmd.Flags().BoolP("json", "j", false, "Output comparison in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output comparison in Markdown format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	compare, err := cmd.Flags().GetBool("compare")
	if err != nil {
		return err
	}
	withRun, err := cmd.Flags().GetInt64("with-run")
	if err != nil {
		return err
	}
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOut, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOut && markdownOut {
		return config.ErrConflictingReportFormats
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var target model.ProjectRef
	if len(args) == 1 {
		target, err = kickstarter.ParseProjectURL(args[0])
		if err != nil {
			return err
		}
	} else if compare || withRun > 0 {
		return errors.New("project URL is required for --compare")
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case len(args) == 0:
		return listTargets(ctx, db, out)
	case compare || withRun > 0:
		return compareRuns(ctx, db, target, withRun, newReportWriter(jsonOut, markdownOut, out))
	default:
		return listRuns(ctx, db, target, out)
	}
}

func listTargets(ctx context.Context, db *database.HistoryDB, out io.Writer) error {
	targets, err := db.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		fmt.Fprintln(out, "\nUse 'kickscan scrape <project-url> <backer-threshold> <category-threshold>' to record one.")
		return nil
	}
	fmt.Fprintf(out, "Projects with recorded runs (%d):\n\n", len(targets))
	for _, t := range targets {
		fmt.Fprintf(out, "  • %s\n", t)
	}
	return nil
}

func listRuns(ctx context.Context, db *database.HistoryDB, target model.ProjectRef, out io.Writer) error {
	runs, err := db.ListRuns(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded for %s\n", target)
		return nil
	}

	fmt.Fprintf(out, "Runs for %s (%d):\n\n", target, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-8s  %-8s  %s\n", "ID", "Date", "Backers", "Deleted", "Projects")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-8d  %-8d  %d\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Users,
			r.DeletedUsers,
			r.DistinctProjects,
		)
	}
	fmt.Fprintln(out, "\nUse 'kickscan history --compare <project-url>' to compare the latest two runs.")
	return nil
}

func compareRuns(ctx context.Context, db *database.HistoryDB, target model.ProjectRef, withRun int64, w report.Writer) error {
	latest, err := db.LatestReports(ctx, target, 2)
	if err != nil {
		return fmt.Errorf("failed to load reports: %w", err)
	}
	if len(latest) == 0 {
		return fmt.Errorf("no runs recorded for %s", target)
	}

	current := latest[0]
	var previous *model.SimilarityReport
	if withRun > 0 {
		previous, err = db.GetReport(ctx, withRun)
		if err != nil {
			return fmt.Errorf("failed to load run %d: %w", withRun, err)
		}
		if previous.Target != target {
			return fmt.Errorf("run %d belongs to %s, not %s", withRun, previous.Target, target)
		}
	} else {
		if len(latest) < 2 {
			return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(latest))
		}
		previous = latest[1]
	}

	_, err = w.WriteDiff(report.Compare(previous, current))
	return err
}
