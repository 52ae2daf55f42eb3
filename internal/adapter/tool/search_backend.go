package tool

import (
	"fmt"
	"strings"

	"pplx-mcp/internal/domain"
)

// SearchBackend abstracts the answer engine behind web_search.
type SearchBackend = domain.Searcher

// sourcesHeader opens the citations block.
const sourcesHeader = "\n\nSources:\n"

// formatAnswer renders an answer as text blocks: the answer content, then a
// numbered sources block when the answer has citations.
func formatAnswer(answer *domain.SearchAnswer) []string {
	blocks := []string{answer.Content}
	if len(answer.Citations) > 0 {
		blocks = append(blocks, FormatSources(answer.Citations))
	}
	return blocks
}

// FormatSources lists citations 1-indexed, one per line, with no trailing newline.
func FormatSources(citations []string) string {
	var sb strings.Builder
	sb.WriteString(sourcesHeader)
	for i, c := range citations {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, c)
	}
	return sb.String()
}
