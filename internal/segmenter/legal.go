package segmenter

import (
	"regexp"
	"strings"

	"eurorag/internal/domain"
)

// Section titles that start a unit of their own besides numbered articles.
const (
	TransitionalTitle  = "Преходни и заключителни разпоредби"
	SupplementaryTitle = "Допълнителни разпоредби"
	articlePrefix      = "Чл."
)

// DefaultRunningHeader is the page header of the BNB law PDF.
const DefaultRunningHeader = "Закон за Българската народна банка"

// LegalSegmenter splits a paginated law into one unit per article and per
// named transitional or supplementary section.
type LegalSegmenter struct {
	headers map[string]struct{}
	marker  *regexp.Regexp
}

// NewLegalSegmenter builds a segmenter that drops the given running
// headers. With no headers it uses DefaultRunningHeader.
func NewLegalSegmenter(headers ...string) *LegalSegmenter {
	if len(headers) == 0 {
		headers = []string{DefaultRunningHeader}
	}
	hs := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		hs[strings.TrimSpace(h)] = struct{}{}
	}
	return &LegalSegmenter{
		headers: hs,
		marker: regexp.MustCompile(`Чл\.[\s\p{Z}]*\p{Nd}+|` +
			regexp.QuoteMeta(TransitionalTitle) + `|` +
			regexp.QuoteMeta(SupplementaryTitle)),
	}
}

func (s *LegalSegmenter) Segment(doc domain.Document) ([]string, error) {
	pages := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		pages[i] = s.filterPage(p)
	}
	combined := strings.Join(pages, "\n")

	// Split before every marker; each chunk begins exactly at its marker.
	locs := s.marker.FindAllStringIndex(combined, -1)
	if len(locs) == 0 {
		return nil, nil
	}
	var units []string
	for i, loc := range locs {
		end := len(combined)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		chunk := strings.TrimSpace(combined[loc[0]:end])
		if hasMarkerPrefix(chunk) {
			units = append(units, chunk)
		}
	}
	return units, nil
}

func (s *LegalSegmenter) filterPage(page string) string {
	lines := strings.Split(page, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isPageNumber(trimmed) {
			continue
		}
		if _, ok := s.headers[trimmed]; ok {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isPageNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasMarkerPrefix(chunk string) bool {
	return strings.HasPrefix(chunk, articlePrefix) ||
		strings.HasPrefix(chunk, TransitionalTitle) ||
		strings.HasPrefix(chunk, SupplementaryTitle)
}
