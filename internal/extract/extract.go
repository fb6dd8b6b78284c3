// Package extract loads source documents as per-page plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"eurorag/internal/domain"
)

// ErrUnsupported is returned for file types Load cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// Load reads path as a PDF (one page per PDF page) or as UTF-8 text
// (a single page).
func Load(path string) (domain.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := PDF(path)
		if err != nil {
			return domain.Document{}, err
		}
		return domain.Document{Path: path, Pages: pages}, nil
	case ".txt", ".md", "":
		return Text(path)
	default:
		return domain.Document{}, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
}

// Text reads a plain text file as a single-page document.
func Text(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	content := strings.TrimPrefix(string(data), "\ufeff")
	return domain.Document{Path: path, Pages: []string{content}}, nil
}
