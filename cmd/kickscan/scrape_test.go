package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/kickscan/internal/config"
	kslog "github.com/nao1215/kickscan/internal/log"
)

// scrapeCmdWithFlags returns the scrape subcommand of a fresh root with flags
// parsed, using an empty config file so the user's own file is never read.
func scrapeCmdWithFlags(t *testing.T, flags ...string) *cobra.Command {
	t.Helper()
	return scrapeCmdWithConfig(t, "{}\n", flags...)
}

// writeConfig writes content to a config file in a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), ".kickscan")
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return cfgPath
}

// scrapeCmdWithConfig is scrapeCmdWithFlags with the given config file content.
func scrapeCmdWithConfig(t *testing.T, content string, flags ...string) *cobra.Command {
	t.Helper()

	cfgPath := writeConfig(t, content)

	root := NewRootCmd()
	cmd, _, err := root.Find([]string{"scrape"})
	if err != nil {
		t.Fatalf("failed to find scrape command: %v", err)
	}
	if err := cmd.ParseFlags(append([]string{"--config", cfgPath}, flags...)); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd
}

// TestBuildScrapeConfig tests argument and flag handling.
func TestBuildScrapeConfig(t *testing.T) {
	t.Parallel()

	t.Run("url and thresholds", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithFlags(t, "--delay", "1s", "--no-cloudflare", "--no-history", "-m")
		cfg, err := buildScrapeConfig(cmd, []string{"https://www.kickstarter.com/projects/acme/widget", "5", "0.25"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ProjectURL != "https://www.kickstarter.com/projects/acme/widget" {
			t.Errorf("unexpected project URL %q", cfg.ProjectURL)
		}
		if cfg.ProjectThreshold != 5 || cfg.CategoryThreshold != 0.25 {
			t.Errorf("expected thresholds 5/0.25, got %d/%v", cfg.ProjectThreshold, cfg.CategoryThreshold)
		}
		if cfg.PageDelay != time.Second {
			t.Errorf("expected delay 1s, got %v", cfg.PageDelay)
		}
		if cfg.BypassCloudflare {
			t.Error("expected cloudflare bypass to be disabled")
		}
		if cfg.DBDir != "" {
			t.Errorf("expected history to be disabled, got %q", cfg.DBDir)
		}
		if !cfg.MarkdownReport || cfg.JSONReport {
			t.Error("expected markdown report only")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("snapshot takes two thresholds", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithFlags(t, "-s", "acme_widget_1700000000.json")
		cfg, err := buildScrapeConfig(cmd, []string{"2", "0.1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ProjectURL != "" {
			t.Errorf("expected no project URL, got %q", cfg.ProjectURL)
		}
		if cfg.FromSnapshot != "acme_widget_1700000000.json" {
			t.Errorf("unexpected snapshot %q", cfg.FromSnapshot)
		}
		ref, err := scrapeTarget(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ref.String() != "acme/widget" {
			t.Errorf("expected target acme/widget, got %s", ref)
		}
	})

	t.Run("wrong argument count", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithFlags(t)
		if _, err := buildScrapeConfig(cmd, []string{"2", "0.1"}); err == nil {
			t.Error("expected error without project URL")
		}
		cmd = scrapeCmdWithFlags(t, "-s", "acme_widget_1.json")
		if _, err := buildScrapeConfig(cmd, []string{"https://www.kickstarter.com/projects/acme/widget", "2", "0.1"}); err == nil {
			t.Error("expected error for URL together with snapshot")
		}
	})

	t.Run("invalid thresholds", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithFlags(t)
		_, err := buildScrapeConfig(cmd, []string{"https://www.kickstarter.com/projects/acme/widget", "many", "0.1"})
		if !errors.Is(err, config.ErrInvalidProjectThreshold) {
			t.Errorf("expected ErrInvalidProjectThreshold, got %v", err)
		}
		_, err = buildScrapeConfig(cmd, []string{"https://www.kickstarter.com/projects/acme/widget", "2", "most"})
		if !errors.Is(err, config.ErrInvalidCategoryThreshold) {
			t.Errorf("expected ErrInvalidCategoryThreshold, got %v", err)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := buildScrapeConfig(cmd, []string{"https://www.kickstarter.com/projects/acme/widget", "2", "0.1"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// TestBuildScrapeConfig_FlagsOverFile tests that flags the user typed win over
// the config file even when they carry the default value.
func TestBuildScrapeConfig_FlagsOverFile(t *testing.T) {
	t.Parallel()

	const file = `defaults:
  pageDelay: 5s
  pageDelaySpread: 1s
  proxy: "127.0.0.1:9050"
  userAgent: "file-agent/1.0"
`
	args := []string{"https://www.kickstarter.com/projects/acme/widget", "1", "0.1"}

	t.Run("explicit default-valued flags win", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithConfig(t, file, "--delay", "200ms", "--delay-spread", "100ms", "--proxy", "")
		cfg, err := buildScrapeConfig(cmd, args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.PageDelay != 200*time.Millisecond {
			t.Errorf("expected flag delay 200ms, got %v", cfg.PageDelay)
		}
		if cfg.PageDelaySpread != 100*time.Millisecond {
			t.Errorf("expected flag spread 100ms, got %v", cfg.PageDelaySpread)
		}
		if cfg.ProxyAddress != "" {
			t.Errorf("expected proxy cleared by flag, got %q", cfg.ProxyAddress)
		}
	})

	t.Run("untouched flags keep file values", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithConfig(t, file)
		cfg, err := buildScrapeConfig(cmd, args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.PageDelay != 5*time.Second || cfg.PageDelaySpread != time.Second {
			t.Errorf("expected file delays 5s/1s, got %v/%v", cfg.PageDelay, cfg.PageDelaySpread)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("expected file proxy, got %q", cfg.ProxyAddress)
		}
		if cfg.UserAgent != "file-agent/1.0" {
			t.Errorf("expected file user agent, got %q", cfg.UserAgent)
		}
		if !cfg.BypassCloudflare {
			t.Error("expected cloudflare bypass to stay enabled")
		}
	})

	t.Run("display flags", func(t *testing.T) {
		t.Parallel()

		cmd := scrapeCmdWithConfig(t, file, "--timestamps", "--log-json")
		cfg, err := buildScrapeConfig(cmd, args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.Timestamps || !cfg.LogJSON {
			t.Errorf("expected timestamps and JSON logs, got %v/%v", cfg.Timestamps, cfg.LogJSON)
		}
	})
}

// TestNewLogger tests the text and JSON log formats.
func TestNewLogger(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	newLogger(&text, false, false).Warn("slow page", "password", "hunter2")
	newLogger(&js, false, true).Warn("slow page", "password", "hunter2")

	if strings.HasPrefix(text.String(), "{") {
		t.Errorf("expected text log, got %q", text.String())
	}
	if !strings.HasPrefix(js.String(), "{") || !strings.Contains(js.String(), `"msg":"slow page"`) {
		t.Errorf("expected JSON log, got %q", js.String())
	}
	for _, out := range []string{text.String(), js.String()} {
		if strings.Contains(out, "hunter2") {
			t.Errorf("expected password to be masked, got %q", out)
		}
	}
}

// TestProxyCheckTarget tests host:port derivation from the base URL.
func TestProxyCheckTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		baseURL string
		want    string
		wantErr bool
	}{
		{baseURL: "https://www.kickstarter.com", want: "www.kickstarter.com:443"},
		{baseURL: "http://mirror.test", want: "mirror.test:80"},
		{baseURL: "http://127.0.0.1:8080", want: "127.0.0.1:8080"},
		{baseURL: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			t.Parallel()

			got, err := proxyCheckTarget(tt.baseURL)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// projectPage renders a project page embedding meta the way the site does.
func projectPage(meta string) string {
	return `<html><head><script>window.current_project = "` + html.EscapeString(meta) + `";</script></head><body></body></html>`
}

// profilePage renders a single-page profile backing the given projects.
func profilePage(name string, projects ...string) string {
	var links strings.Builder
	for _, p := range projects {
		fmt.Fprintf(&links, `<a href="/projects/%s">%s</a>`, p, p)
	}
	return `<html><head><meta property="kickstarter:name" content="` + name + `"></head><body>
		<ul><li class="page" data-last_page="true" data-page_number="1">` + links.String() + `</li></ul></body></html>`
}

// fakeSite serves a project with two backers who both backed one other project.
func fakeSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/projects/acme/widget/backers", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<ul><li class="page" data-last_page="true">
			<div class="backer" data-cursor="1"><a href="/profile/alice">Alice</a></div>
			<div class="backer" data-cursor="2"><a href="/profile/bob">Bob</a></div>
		</li></ul>`)
	})
	mux.HandleFunc("/profile/alice", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, profilePage("Alice", "acme/widget", "acme/gadget"))
	})
	mux.HandleFunc("/profile/bob", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, profilePage("Bob", "acme/widget", "acme/gadget"))
	})
	mux.HandleFunc("/projects/acme/widget", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, projectPage(`{"id":1,"name":"Widget","category":{"id":12,"name":"Games"}}`))
	})
	mux.HandleFunc("/projects/acme/gadget", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, projectPage(`{"id":2,"name":"Gadget","category":{"id":16,"name":"Hardware"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testScrapeConfig points a config at srv with all state under a temp dir.
func testScrapeConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.BaseURL = srv.URL
	cfg.ProjectURL = srv.URL + "/projects/acme/widget"
	cfg.ProjectThreshold = 2
	cfg.CategoryThreshold = 0.1
	cfg.PageDelay = 0
	cfg.PageDelaySpread = 0
	cfg.BypassCloudflare = false
	cfg.CachePath = filepath.Join(dir, "cache", "v1.json.gz")
	cfg.SnapshotDir = filepath.Join(dir, "snapshots")
	cfg.DBDir = filepath.Join(dir, "db")
	return cfg
}

// TestRunScrape runs a scrape against a fake site, reruns the aggregation
// from its snapshot and compares the two recorded runs.
func TestRunScrape(t *testing.T) {
	t.Parallel()

	srv := fakeSite(t)
	cfg := testScrapeConfig(t, srv)
	logger := kslog.NewSecureLogger(io.Discard, false)
	ctx := context.Background()

	var out bytes.Buffer
	if err := runScrape(ctx, cfg, logger, &out); err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	for _, want := range []string{
		"Target:  acme/widget",
		"Projects in common (popularity sort)",
		"gadget\n    2 common backers\n    Hardware (16)",
		"50.0% Games (12)",
		"50.0% Hardware (16)",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected report to contain %q, got:\n%s", want, out.String())
		}
	}

	if _, err := os.Stat(cfg.CachePath); err != nil {
		t.Errorf("expected project cache to be written: %v", err)
	}
	snapshots, err := filepath.Glob(filepath.Join(cfg.SnapshotDir, "acme_widget_*.json"))
	if err != nil || len(snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %v (%v)", snapshots, err)
	}

	t.Run("rerun from snapshot", func(t *testing.T) {
		rerun := *cfg
		rerun.ProjectURL = ""
		rerun.FromSnapshot = snapshots[0]
		rerun.ProjectThreshold = 3

		var out bytes.Buffer
		if err := runScrape(ctx, &rerun, logger, &out); err != nil {
			t.Fatalf("snapshot run failed: %v", err)
		}
		if !strings.Contains(out.String(), "(none at or above 3 backers)") {
			t.Errorf("expected empty project listing, got:\n%s", out.String())
		}
	})

	t.Run("history compares both runs", func(t *testing.T) {
		var out bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&out)
		root.SetArgs([]string{"history", "--db-dir", cfg.DBDir, "--compare", cfg.ProjectURL})
		if err := root.Execute(); err != nil {
			t.Fatalf("history failed: %v", err)
		}
		for _, want := range []string{
			"Comparison for acme/widget",
			"Dropped projects (2):",
			"  - gadget (2 common backers)",
		} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("expected comparison to contain %q, got:\n%s", want, out.String())
			}
		}
	})

	t.Run("history lists runs", func(t *testing.T) {
		var out bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&out)
		root.SetArgs([]string{"history", "--db-dir", cfg.DBDir, cfg.ProjectURL})
		if err := root.Execute(); err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(out.String(), "Runs for acme/widget (2):") {
			t.Errorf("expected two runs, got:\n%s", out.String())
		}
	})
}

// TestRunScrape_JSONToFile tests the JSON report written to a file.
func TestRunScrape_JSONToFile(t *testing.T) {
	t.Parallel()

	srv := fakeSite(t)
	cfg := testScrapeConfig(t, srv)
	cfg.DBDir = ""
	cfg.JSONReport = true
	cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "widget.json")

	var stdout bytes.Buffer
	if err := runScrape(context.Background(), cfg, kslog.NewSecureLogger(io.Discard, false), &stdout); err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Projects in common (popularity sort)") {
		t.Errorf("expected text summary on stdout, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "{") {
		t.Errorf("expected no JSON on stdout, got %q", stdout.String())
	}
	data, err := os.ReadFile(cfg.ReportFile)
	if err != nil {
		t.Fatalf("expected report file: %v", err)
	}
	if !strings.Contains(string(data), `"gadget"`) {
		t.Errorf("expected gadget in JSON report, got %s", data)
	}
}

// TestRunScrape_Timestamps tests the timestamp prefix on the text report.
func TestRunScrape_Timestamps(t *testing.T) {
	t.Parallel()

	srv := fakeSite(t)
	cfg := testScrapeConfig(t, srv)
	cfg.DBDir = ""
	cfg.Timestamps = true

	var out bytes.Buffer
	if err := runScrape(context.Background(), cfg, kslog.NewSecureLogger(io.Discard, false), &out); err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected a report, got %q", out.String())
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[") || !strings.Contains(line, "] ") {
			t.Errorf("expected timestamp prefix, got %q", line)
		}
	}
}
