package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/kickscan/internal/config"
	"github.com/nao1215/kickscan/internal/fetch"
	kslog "github.com/nao1215/kickscan/internal/log"
	"github.com/nao1215/kickscan/internal/report"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getLogJSONFlag retrieves the log-json flag from the command or its parent.
func getLogJSONFlag(cmd *cobra.Command) bool {
	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		logJSON, err = cmd.Root().PersistentFlags().GetBool("log-json")
		if err != nil {
			return false
		}
	}
	return logJSON
}

// setupLogger creates the credential-masking stderr logger.
func setupLogger(verbose, logJSON bool) *slog.Logger {
	return newLogger(os.Stderr, verbose, logJSON)
}

func newLogger(w io.Writer, verbose, logJSON bool) *slog.Logger {
	if logJSON {
		return kslog.NewSecureJSONLogger(w, verbose)
	}
	return kslog.NewSecureLogger(w, verbose)
}

// applyRequestFlags copies the request flags the user set on cmd into cfg.
// Flags left untouched keep the values from the config file.
func applyRequestFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	flags := cmd.Flags()
	if flags.Changed("delay") {
		if cfg.PageDelay, err = flags.GetDuration("delay"); err != nil {
			return err
		}
	}
	if flags.Changed("delay-spread") {
		if cfg.PageDelaySpread, err = flags.GetDuration("delay-spread"); err != nil {
			return err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("no-cloudflare") {
		noCloudflare, err := flags.GetBool("no-cloudflare")
		if err != nil {
			return err
		}
		cfg.BypassCloudflare = !noCloudflare
	}
	return nil
}

// loadConfigFile finds and parses the YAML config file. An explicit --config
// path that does not exist is an error; a missing default file is not.
func loadConfigFile(cmd *cobra.Command) (*config.File, error) {
	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	path := config.FindConfigFile(explicit)
	if path == "" {
		if explicit != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicit)
		}
		return &config.File{}, nil
	}
	file, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return file, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// newClient builds the HTTP client for cfg. A configured proxy is checked
// before the client is returned.
func newClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fetch.Client, error) {
	opts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithCloudflareBypass(cfg.BypassCloudflare),
		fetch.WithLogger(logger),
	}
	if cfg.Cookie != "" {
		opts = append(opts, fetch.WithCookie(cfg.Cookie))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, fetch.WithHeaders(cfg.Headers))
	}
	if cfg.ProxyAddress != "" {
		target, err := proxyCheckTarget(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		if status := fetch.CheckProxy(ctx, cfg.ProxyAddress, target); status != fetch.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Error(), cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		opts = append(opts, fetch.WithProxy(cfg.ProxyAddress))
	}
	return fetch.NewClient(cfg.BaseURL, opts...)
}

// proxyCheckTarget turns the base URL into the host:port the proxy is asked to reach.
func proxyCheckTarget(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// openOutput returns stdout, or path created with owner-only permissions.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter picks the report format. textOpts apply to the text format only.
func newReportWriter(jsonOut, markdownOut bool, out io.Writer, textOpts ...report.SimpleWriterOption) report.Writer {
	switch {
	case jsonOut:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case markdownOut:
		return report.NewMarkdownWriter(out)
	default:
		opts := append([]report.SimpleWriterOption{report.WithShowEmpty(true)}, textOpts...)
		return report.NewSimpleWriter(out, opts...)
	}
}
