package report

import (
	"io"

	"github.com/nao1215/kickscan/internal/model"
)

// Writer renders reports in one output format.
type Writer interface {
	// Write outputs a similarity report.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.SimilarityReport) (int, error)

	// WriteDiff outputs the difference between two reports.
	WriteDiff(diff *Diff) (int, error)
}

// MultiWriter writes to multiple Writers, e.g. the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.SimilarityReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteDiff outputs the diff to all configured Writers.
func (m *MultiWriter) WriteDiff(diff *Diff) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteDiff(diff)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
