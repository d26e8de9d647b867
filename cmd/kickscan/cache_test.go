package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/kickscan/internal/cache"
	"github.com/nao1215/kickscan/internal/model"
)

// seedCache writes a cache holding widget and gadget under a stale category.
func seedCache(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "project_cache", "v1.json.gz")
	c, err := cache.Open(path)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	stale := func(_ context.Context, ref model.ProjectRef) (*model.ProjectRecord, error) {
		doc := map[string]any{
			"id":       json.Number("1"),
			"name":     ref.ProjectID,
			"category": map[string]any{"id": json.Number("99"), "name": "Stale"},
		}
		return model.NewProjectRecord(ref, doc, time.Unix(1700000000, 0))
	}
	for _, p := range []string{"widget", "gadget"} {
		if _, err := c.GetOrFetch(context.Background(), model.ProjectRef{CreatorID: "acme", ProjectID: p}, stale, false); err != nil {
			t.Fatalf("failed to seed cache: %v", err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("failed to write cache: %v", err)
	}
	return path
}

// TestCacheRefreshCmd tests refetching cached projects from the site.
func TestCacheRefreshCmd(t *testing.T) {
	t.Parallel()

	srv := fakeSite(t)
	path := seedCache(t)
	cfgPath := writeConfig(t, "defaults:\n  baseURL: \""+srv.URL+"\"\n")

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"cache", "refresh",
		"--config", cfgPath,
		"--cache", path,
		"--delay", "0s",
		"--delay-spread", "0s",
		"--no-cloudflare",
		"--checkpoint", "1",
	})
	if err := root.Execute(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if !strings.Contains(out.String(), "Refreshed 2 of 2 projects") {
		t.Errorf("unexpected output %q", out.String())
	}

	c, err := cache.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen cache: %v", err)
	}
	defer c.Close()
	want := map[string]string{"widget": "Games", "gadget": "Hardware"}
	for id, category := range want {
		rec, ok := c.Lookup(id)
		if !ok {
			t.Fatalf("expected %s in cache", id)
		}
		if rec.Category.Name != category {
			t.Errorf("expected %s refreshed to %s, got %q", id, category, rec.Category.Name)
		}
	}
}

// TestCacheStatsCmd tests the JSON statistics output.
func TestCacheStatsCmd(t *testing.T) {
	t.Parallel()

	path := seedCache(t)

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"cache", "stats", "--cache", path, "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	var stats cache.Stats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", out.String(), err)
	}
	if stats.Entries != 2 {
		t.Errorf("expected 2 entries, got %d", stats.Entries)
	}
	if len(stats.Categories) != 1 || stats.Categories[0].Name != "Stale" || stats.Categories[0].Projects != 2 {
		t.Errorf("unexpected categories %+v", stats.Categories)
	}
}
