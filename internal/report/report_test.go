package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/kickscan/internal/cache"
	"github.com/nao1215/kickscan/internal/model"
)

func sampleReport() *model.SimilarityReport {
	return &model.SimilarityReport{
		Target:            model.ProjectRef{CreatorID: "acme", ProjectID: "widget"},
		GeneratedAt:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Users:             3,
		ProjectThreshold:  2,
		CategoryThreshold: 0.1,
		DistinctProjects:  2,
		CategoryTotal:     5,
		Projects: []model.ProjectStat{
			{ProjectID: "alpha", CreatorID: "x", Count: 3, CategoryID: 12, CategoryName: "Tabletop Games"},
		},
		Categories: []model.CategoryStat{
			{CategoryID: 12, CategoryName: "Tabletop Games", Count: 4, Share: 0.8},
			{CategoryID: 16, CategoryName: "Video Games", Count: 1, Share: 0.2},
		},
	}
}

// TestSimpleWriter tests the console listing.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes both listings", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(sampleReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("expected %d bytes reported, got %d", buf.Len(), n)
		}

		output := buf.String()
		for _, want := range []string{
			"Projects in common (popularity sort)\nalpha\n    3 common backers\n    Tabletop Games (12)\n",
			"Favorite categories (popularity sort)\n80.0% Tabletop Games (12)\n20.0% Video Games (16)\n",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("groups large counts", func(t *testing.T) {
		t.Parallel()

		r := sampleReport()
		r.Projects[0].Count = 1234
		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "1,234 common backers") {
			t.Errorf("expected grouped count, got:\n%s", buf.String())
		}
	})

	t.Run("timestamp prefix", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithTimestamp(true)).Write(sampleReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
			if !strings.HasPrefix(line, "[Fri Mar  1 12:00:00 2024] ") {
				t.Fatalf("expected timestamp prefix, got %q", line)
			}
		}
	})

	t.Run("empty listings", func(t *testing.T) {
		t.Parallel()

		r := sampleReport()
		r.Projects = []model.ProjectStat{}
		r.Categories = []model.CategoryStat{}

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithShowEmpty(true)).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "(none at or above 2 backers)") {
			t.Errorf("expected placeholder, got:\n%s", buf.String())
		}
	})
}

// TestJSONWriter tests JSON output.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("plain report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(sampleReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got model.SimilarityReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if diff := cmp.Diff(sampleReport(), &got); diff != "" {
			t.Errorf("report mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("versioned envelope with indentation", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint(), WithVersion("1.2.3"))
		if _, err := w.Write(sampleReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"version\": \"1.2.3\"") {
			t.Errorf("expected indented version field, got:\n%s", buf.String())
		}
	})
}

// TestMarkdownWriter tests Markdown output.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{
		"# Backer Similarity Report",
		"## Projects in Common",
		"`x/alpha`",
		"## Favorite Categories",
		"80.0%",
		"```mermaid",
		"pie",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

// TestCompare tests the history diff.
func TestCompare(t *testing.T) {
	t.Parallel()

	previous := &model.SimilarityReport{
		Target: model.ProjectRef{CreatorID: "acme", ProjectID: "widget"},
		Users:  10,
		Projects: []model.ProjectStat{
			{ProjectID: "a", Count: 5},
			{ProjectID: "b", Count: 4},
			{ProjectID: "c", Count: 3},
			{ProjectID: "d", Count: 2},
		},
	}
	current := &model.SimilarityReport{
		Target: previous.Target,
		Users:  12,
		Projects: []model.ProjectStat{
			{ProjectID: "a", Count: 6},
			{ProjectID: "c", Count: 3},
			{ProjectID: "d", Count: 5},
			{ProjectID: "e", Count: 2},
		},
	}

	got := Compare(previous, current)

	if d := cmp.Diff([]model.ProjectStat{{ProjectID: "e", Count: 2}}, got.Entered); d != "" {
		t.Errorf("entered mismatch (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]model.ProjectStat{{ProjectID: "b", Count: 4}}, got.Left); d != "" {
		t.Errorf("left mismatch (-want +got):\n%s", d)
	}
	wantChanged := []ProjectChange{
		{ProjectID: "d", Previous: 2, Current: 5, Delta: 3},
		{ProjectID: "a", Previous: 5, Current: 6, Delta: 1},
	}
	if d := cmp.Diff(wantChanged, got.Changed); d != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", d)
	}
	if got.Unchanged != 1 {
		t.Errorf("expected 1 unchanged, got %d", got.Unchanged)
	}
	if !got.HasChanges() {
		t.Error("expected HasChanges to be true")
	}
	if Compare(current, current).HasChanges() {
		t.Error("expected identical reports to have no changes")
	}
}

// TestDiffWriters tests that each format renders a diff.
func TestDiffWriters(t *testing.T) {
	t.Parallel()

	previous := sampleReport()
	current := sampleReport()
	current.Projects = append(current.Projects, model.ProjectStat{ProjectID: "beta", Count: 2})

	tests := []struct {
		name string
		new  func(*bytes.Buffer) Writer
		want string
	}{
		{name: "text", new: func(b *bytes.Buffer) Writer { return NewSimpleWriter(b) }, want: "+ beta (2 common backers)"},
		{name: "json", new: func(b *bytes.Buffer) Writer { return NewJSONWriter(b) }, want: `"entered":[{"project_id":"beta"`},
		{name: "markdown", new: func(b *bytes.Buffer) Writer { return NewMarkdownWriter(b) }, want: "## New Projects in Common"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if _, err := tt.new(&buf).WriteDiff(Compare(previous, current)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output, got:\n%s", tt.want, buf.String())
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write(*model.SimilarityReport) (int, error) { return 0, errors.New("write failed") }
func (failingWriter) WriteDiff(*Diff) (int, error)               { return 0, errors.New("write failed") }

// TestMultiWriter tests fan-out and early stop.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		n, err := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b)).Write(sampleReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != a.Len()+b.Len() {
			t.Errorf("expected %d total bytes, got %d", a.Len()+b.Len(), n)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		_, err := NewMultiWriter(failingWriter{}, NewSimpleWriter(&after)).Write(sampleReport())
		if err == nil {
			t.Fatal("expected error")
		}
		if after.Len() != 0 {
			t.Error("expected later writers to be skipped")
		}
	})
}

// TestWriteCacheStats tests the cache summary.
func TestWriteCacheStats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := WriteCacheStats(&buf, cache.Stats{
		Path:       "/tmp/v1.json.gz",
		Version:    1,
		Entries:    1500,
		Categories: []cache.CategoryCount{{ID: 34, Name: "Tabletop Games", Projects: 1500}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Projects: 1,500") {
		t.Errorf("expected grouped entry count, got:\n%s", output)
	}
	if !strings.Contains(output, "Tabletop Games") {
		t.Errorf("expected category row, got:\n%s", output)
	}
}
