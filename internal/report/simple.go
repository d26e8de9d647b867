package report

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/kickscan/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs the plain text console report.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints a placeholder line for listings with no entries.
	showEmpty bool

	// timestamp prefixes each line with the report generation time.
	timestamp bool

	printer *message.Printer
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty prints "(none)" under listings that were filtered to nothing.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithTimestamp prefixes every line with "[<generated at>] ".
func WithTimestamp(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.timestamp = enabled
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the two ranked listings.
func (w *SimpleWriter) Write(report *model.SimilarityReport) (int, error) {
	var sb strings.Builder
	prefix := ""
	if w.timestamp {
		prefix = "[" + report.GeneratedAt.Format("Mon Jan _2 15:04:05 2006") + "] "
	}
	line := func(format string, args ...any) {
		sb.WriteString(prefix)
		sb.WriteString(w.printer.Sprintf(format, args...))
		sb.WriteString("\n")
	}

	line("Target:  %s", report.Target.String())
	line("Backers: %d resolved, %d distinct projects", report.Users, report.DistinctProjects)
	line("")

	line("Projects in common (popularity sort)")
	for _, p := range report.Projects {
		line("%s", p.ProjectID)
		line("    %d common backers", p.Count)
		line("    %s (%s)", p.CategoryName, strconv.Itoa(p.CategoryID))
	}
	if len(report.Projects) == 0 && w.showEmpty {
		line("    (none at or above %d backers)", report.ProjectThreshold)
	}
	line("")

	line("Favorite categories (popularity sort)")
	for _, c := range report.Categories {
		line("%.1f%% %s (%s)", c.Percent(), c.CategoryName, strconv.Itoa(c.CategoryID))
	}
	if len(report.Categories) == 0 && w.showEmpty {
		line("    (none at or above %.1f%%)", report.CategoryThreshold*100)
	}

	return io.WriteString(w.output, sb.String())
}

// WriteDiff outputs a text summary of the changes between two runs.
func (w *SimpleWriter) WriteDiff(diff *Diff) (int, error) {
	var sb strings.Builder
	p := w.printer

	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	sb.WriteString(p.Sprintf("Comparison for %s\n", diff.Target.String()))
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n\n")
	sb.WriteString(p.Sprintf("Previous: %s (%d backers)\n", diff.PreviousAt.Format("2006-01-02 15:04:05"), diff.PreviousUsers))
	sb.WriteString(p.Sprintf("Current:  %s (%d backers)\n\n", diff.CurrentAt.Format("2006-01-02 15:04:05"), diff.CurrentUsers))

	if !diff.HasChanges() {
		sb.WriteString(p.Sprintf("No changes (%d projects unchanged)\n", diff.Unchanged))
		return io.WriteString(w.output, sb.String())
	}

	if len(diff.Entered) > 0 {
		sb.WriteString(p.Sprintf("New projects in common (%d):\n", len(diff.Entered)))
		for _, s := range diff.Entered {
			sb.WriteString(p.Sprintf("  + %s (%d common backers)\n", s.ProjectID, s.Count))
		}
		sb.WriteString("\n")
	}
	if len(diff.Left) > 0 {
		sb.WriteString(p.Sprintf("Dropped projects (%d):\n", len(diff.Left)))
		for _, s := range diff.Left {
			sb.WriteString(p.Sprintf("  - %s (%d common backers)\n", s.ProjectID, s.Count))
		}
		sb.WriteString("\n")
	}
	if len(diff.Changed) > 0 {
		sb.WriteString(p.Sprintf("Changed counts (%d):\n", len(diff.Changed)))
		for _, c := range diff.Changed {
			sb.WriteString(p.Sprintf("  ~ %s: %d -> %d (%+d)\n", c.ProjectID, c.Previous, c.Current, c.Delta))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(p.Sprintf("Unchanged: %d\n", diff.Unchanged))

	return io.WriteString(w.output, sb.String())
}
