package retrieval

import (
	"fmt"
	"strings"

	"eurorag/internal/domain"
)

var hitSeparator = strings.Repeat("-", 40)

// FormatResult renders hits as numbered blocks:
//
//	1. (Score: 0.8731)
//	<text>
//	----------------------------------------
//
// Blocks are separated by a blank line.
func FormatResult(res domain.Result) string {
	blocks := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		blocks[i] = fmt.Sprintf("%d. (Score: %.4f)\n%s\n%s", h.Rank, h.Score, h.Text, hitSeparator)
	}
	return strings.Join(blocks, "\n\n")
}

// FormatGrounding renders one "### <label>:" section per corpus, in the
// given order, separated by a blank line.
func FormatGrounding(corpora []domain.NamedCorpus, results map[string]domain.Result) string {
	sections := make([]string, 0, len(corpora))
	for _, c := range corpora {
		label := c.Label
		if label == "" {
			label = c.Name
		}
		sections = append(sections, fmt.Sprintf("### %s:\n%s", label, FormatResult(results[c.Name])))
	}
	return strings.Join(sections, "\n\n")
}
