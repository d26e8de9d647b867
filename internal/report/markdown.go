package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/kickscan/internal/model"
)

// MarkdownWriter outputs reports in Markdown for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report with a summary table, both listings and a pie chart.
func (w *MarkdownWriter) Write(report *model.SimilarityReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Backer Similarity Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Project", "`" + report.Target.String() + "`"},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Backers", strconv.Itoa(report.Users)},
			{"Distinct Projects", strconv.Itoa(report.DistinctProjects)},
			{"Backer Threshold", strconv.Itoa(report.ProjectThreshold)},
			{"Category Threshold", fmt.Sprintf("%.1f%%", report.CategoryThreshold*100)},
		},
	})
	md.PlainText("")

	w.writeProjects(md, report)
	w.writeCategories(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by kickscan*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeProjects(md *markdown.Markdown, report *model.SimilarityReport) {
	md.H2("Projects in Common")
	md.PlainText("")
	if len(report.Projects) == 0 {
		md.Note(fmt.Sprintf("No project was backed by %d or more backers.", report.ProjectThreshold))
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Projects))
	for i, p := range report.Projects {
		rows[i] = []string{
			"`" + p.CreatorID + "/" + p.ProjectID + "`",
			strconv.Itoa(p.Count),
			fmt.Sprintf("%s (%d)", p.CategoryName, p.CategoryID),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Project", "Common Backers", "Category"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCategories(md *markdown.Markdown, report *model.SimilarityReport) {
	md.H2("Favorite Categories")
	md.PlainText("")
	if len(report.Categories) == 0 {
		md.Note("No category reached the share threshold.")
		md.PlainText("")
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Category Share"),
		piechart.WithShowData(true),
	)
	rows := make([][]string, len(report.Categories))
	for i, c := range report.Categories {
		rows[i] = []string{
			c.CategoryName,
			strconv.Itoa(c.CategoryID),
			strconv.Itoa(c.Count),
			fmt.Sprintf("%.1f%%", c.Percent()),
		}
		chart.LabelAndIntValue(c.CategoryName, uint64(c.Count)) //nolint:gosec // counts are never negative
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "ID", "Backings", "Share"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// WriteDiff outputs the diff as Markdown tables.
func (w *MarkdownWriter) WriteDiff(diff *Diff) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Comparison: " + diff.Target.String())
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Date", "Backers"},
		Rows: [][]string{
			{"Previous", diff.PreviousAt.Format("2006-01-02 15:04:05"), strconv.Itoa(diff.PreviousUsers)},
			{"Current", diff.CurrentAt.Format("2006-01-02 15:04:05"), strconv.Itoa(diff.CurrentUsers)},
		},
	})
	md.PlainText("")

	if !diff.HasChanges() {
		md.Tip(fmt.Sprintf("No changes. %d projects unchanged.", diff.Unchanged))
		return len(md.String()), md.Build()
	}

	if len(diff.Entered) > 0 {
		md.H2("New Projects in Common")
		md.PlainText("")
		md.Table(statTable(diff.Entered))
		md.PlainText("")
	}
	if len(diff.Left) > 0 {
		md.H2("Dropped Projects")
		md.PlainText("")
		md.Table(statTable(diff.Left))
		md.PlainText("")
	}
	if len(diff.Changed) > 0 {
		md.H2("Changed Counts")
		md.PlainText("")
		rows := make([][]string, len(diff.Changed))
		for i, c := range diff.Changed {
			rows[i] = []string{c.ProjectID, strconv.Itoa(c.Previous), strconv.Itoa(c.Current), fmt.Sprintf("%+d", c.Delta)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Project", "Previous", "Current", "Delta"},
			Rows:   rows,
		})
		md.PlainText("")
	}
	md.PlainTextf("Unchanged: %d", diff.Unchanged)

	return len(md.String()), md.Build()
}

func statTable(stats []model.ProjectStat) markdown.TableSet {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		rows[i] = []string{s.ProjectID, strconv.Itoa(s.Count), s.CategoryName}
	}
	return markdown.TableSet{
		Header: []string{"Project", "Common Backers", "Category"},
		Rows:   rows,
	}
}
