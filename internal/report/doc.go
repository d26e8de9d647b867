// Package report renders similarity reports and history diffs.
//
// Three writers implement Writer:
//   - SimpleWriter: the console listing (projects in common, favorite categories)
//   - JSONWriter: the report as JSON, optionally wrapped with the tool version
//   - MarkdownWriter: tables plus a mermaid pie chart of category shares
//
// Compare builds a Diff between two reports of the same target, which every
// writer can also render.
package report
