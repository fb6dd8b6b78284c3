// Package segmenter turns source documents into retrievable units.
package segmenter

import (
	"fmt"

	"eurorag/internal/domain"
)

// Strategy names accepted by New.
const (
	KindQA    = "qa"
	KindLegal = "legal"
)

// New returns the segmenter for kind. headers only apply to KindLegal.
func New(kind string, headers []string) (domain.Segmenter, error) {
	switch kind {
	case KindQA:
		return NewQASegmenter(), nil
	case KindLegal:
		return NewLegalSegmenter(headers...), nil
	default:
		return nil, fmt.Errorf("unknown segmenter: %q", kind)
	}
}
