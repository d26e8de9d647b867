package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for kickscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kickscan",
		Short: "Find what else a project's backers have backed",
		Long: `kickscan scrapes the backer list of a crowdfunding project, resolves each
backer's public profile and reports the projects and categories those backers
have in common.

Project metadata is cached between runs, every run's resolved backers are
written to a snapshot file, and finished reports are kept in a local history
database so runs can be compared over time.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs to stderr as JSON lines")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .kickscan in current or home directory)")

	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewSnipeCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
