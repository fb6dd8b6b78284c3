package segmenter

import (
	"strings"
	"unicode"

	"eurorag/internal/domain"
)

// QASegmenter splits line-oriented Q&A text into "question\nanswer" units.
// A line is a question when its right-trimmed form ends with '?'. Answer
// lines are kept verbatim and only the joined answer is trimmed.
type QASegmenter struct{}

func NewQASegmenter() *QASegmenter { return &QASegmenter{} }

func (s *QASegmenter) Segment(doc domain.Document) ([]string, error) {
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var (
		units    []string
		question string
		pending  bool
		answer   []string
	)
	flush := func() {
		if !pending {
			return
		}
		body := strings.TrimSpace(strings.Join(answer, "\n"))
		units = append(units, question+"\n"+body)
		answer = answer[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.HasSuffix(trimmed, "?") {
			flush()
			question = trimmed
			pending = true
			continue
		}
		if pending {
			answer = append(answer, strings.TrimSuffix(line, "\r"))
		}
	}
	flush()
	return units, nil
}
