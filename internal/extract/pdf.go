package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF returns the text of every page of the PDF at path. Each text row of
// a page becomes one line; pages without content yield an empty string so
// page positions are preserved.
func PDF(path string) (pages []string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	// The pdf reader panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("extract pdf %s: %v", path, rec)
		}
	}()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("extract pdf %s page %d: %w", path, i, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			var b strings.Builder
			for _, t := range row.Content {
				b.WriteString(t.S)
			}
			lines = append(lines, b.String())
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages, nil
}
