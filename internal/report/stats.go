package report

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/kickscan/internal/cache"
)

// WriteCacheStats prints a project cache summary.
func WriteCacheStats(output io.Writer, stats cache.Stats) (int, error) {
	p := message.NewPrinter(language.English)
	var sb strings.Builder

	sb.WriteString(p.Sprintf("Cache:    %s\n", stats.Path))
	sb.WriteString(p.Sprintf("Version:  %d\n", stats.Version))
	sb.WriteString(p.Sprintf("Projects: %d\n", stats.Entries))
	if len(stats.Categories) > 0 {
		sb.WriteString("\n")
		sb.WriteString(p.Sprintf("  %-8s  %-30s  %s\n", "ID", "Category", "Projects"))
		sb.WriteString("  " + strings.Repeat("-", 50) + "\n")
		for _, c := range stats.Categories {
			sb.WriteString(p.Sprintf("  %-8s  %-30s  %d\n", strconv.Itoa(c.ID), c.Name, c.Projects))
		}
	}
	return io.WriteString(output, sb.String())
}
