package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/kickscan/internal/config"
	"github.com/nao1215/kickscan/internal/kickstarter"
	"github.com/nao1215/kickscan/internal/sniper"
)

// passwordEnv is read when --password-stdin is not given.
const passwordEnv = "KICKSCAN_PASSWORD"

// NewSnipeCmd creates the snipe command.
func NewSnipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snipe <project-url> <reward-id> [description]",
		Short: "Switch an existing pledge to a sold-out reward as soon as it frees up",
		Long: `Snipe logs into your account and polls the pledge management page of a
project you already back. When the target reward is no longer sold out, the
pledge is switched to it and the change is confirmed.

Before polling starts the reward is checked once:
- the reward id must exist on the pledge page
- its description must start with [description], if given
- your current pledge must be at least the reward minimum

If the current pledge is higher than the reward minimum, it is lowered to the
minimum when switching.

The password is read from the KICKSCAN_PASSWORD environment variable, or
from standard input with --password-stdin. It is never logged.

Examples:
  # Poll every 30 seconds
  echo "$PASSWORD" | kickscan snipe --password-stdin -e me@example.com -i 30s \
    https://www.kickstarter.com/projects/acme/widget 1313020 "Early bird"`,
		Args: cobra.RangeArgs(2, 3),
		RunE: runSnipeCmd,
	}

	cmd.Flags().StringP("email", "e", "", "Account email (default: snipe.email from the config file)")
	cmd.Flags().Bool("password-stdin", false, "Read the password from standard input")
	cmd.Flags().DurationP("interval", "i", config.DefaultSnipeInterval, "Pause between polls")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")
	cmd.Flags().StringP("proxy", "x", "", "SOCKS5 proxy address (e.g., 127.0.0.1:9050)")

	return cmd
}

// runSnipeCmd executes the snipe command.
func runSnipeCmd(cmd *cobra.Command, args []string) error {
	ref, err := kickstarter.ParseProjectURL(args[0])
	if err != nil {
		return err
	}
	if _, err := strconv.ParseUint(args[1], 10, 64); err != nil {
		return fmt.Errorf("invalid reward id %q: must be numeric", args[1])
	}
	target := sniper.Target{Project: ref, RewardID: args[1]}
	if len(args) == 3 {
		target.Description = args[2]
	}

	file, err := loadConfigFile(cmd)
	if err != nil {
		return err
	}
	cfg := config.NewConfig()
	cfg.ApplyFile(file)
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogJSON = getLogJSONFlag(cmd)
	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return err
	}
	if err := applyRequestFlags(cmd, cfg); err != nil {
		return err
	}

	interval, err := cmd.Flags().GetDuration("interval")
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("interval") && file.Snipe.Interval > 0 {
		interval = file.Snipe.Interval
	}
	if interval <= 0 {
		return errors.New("invalid interval: must be positive")
	}

	creds, err := readCredentials(cmd, file)
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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching reward %s on %s (every %s)...\n", target.RewardID, ref, interval)

	s := sniper.New(client, creds, target,
		sniper.WithInterval(interval),
		sniper.WithLogger(logger),
	)
	result, err := s.Run(ctx)
	if err != nil {
		if result != nil && result.Attempts > 0 {
			fmt.Fprintf(out, "Stopped after %d attempts in %s\n", result.Attempts, result.Duration.Round(time.Second))
		}
		return err
	}

	fmt.Fprintf(out, "Target reward: $%s\n", strconv.FormatFloat(result.Pledge.Minimum, 'f', -1, 64))
	fmt.Fprintf(out, "Original pledge: $%s\n", strconv.FormatFloat(result.Pledge.Original, 'f', -1, 64))
	fmt.Fprintf(out, "Success! (%d runs, %s run time)\n", result.Attempts, result.Duration.Round(time.Second))
	return nil
}

// readCredentials collects the email from flags or the config file and the
// password from stdin or the environment.
func readCredentials(cmd *cobra.Command, file *config.File) (sniper.Credentials, error) {
	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return sniper.Credentials{}, err
	}
	if email == "" {
		email = file.Snipe.Email
	}
	if email == "" {
		return sniper.Credentials{}, errors.New("email is required (use --email or snipe.email in the config file)")
	}

	fromStdin, err := cmd.Flags().GetBool("password-stdin")
	if err != nil {
		return sniper.Credentials{}, err
	}
	var password string
	if fromStdin {
		password, err = readPassword(cmd.InOrStdin())
		if err != nil {
			return sniper.Credentials{}, err
		}
	} else {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return sniper.Credentials{}, fmt.Errorf("password is required (set %s or use --password-stdin)", passwordEnv)
	}
	return sniper.Credentials{Email: email, Password: password}, nil
}

// readPassword returns the first line of r without the trailing newline.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
