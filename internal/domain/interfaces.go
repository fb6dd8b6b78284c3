package domain

import "context"

// Document is a source file as extracted page by page. Plain text files
// have exactly one page.
type Document struct {
	Path  string
	Pages []string
}

// Text returns the pages joined with newlines.
func (d Document) Text() string {
	switch len(d.Pages) {
	case 0:
		return ""
	case 1:
		return d.Pages[0]
	}
	n := len(d.Pages) - 1
	for _, p := range d.Pages {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for i, p := range d.Pages {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, p...)
	}
	return string(buf)
}

// NamedCorpus labels a corpus index with its domain name and search defaults.
type NamedCorpus struct {
	Name  string
	TopK  int
	Label string
}

// Hit is one ranked search result.
type Hit struct {
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Result is the ranked output of one search against one corpus.
type Result struct {
	Corpus string `json:"corpus"`
	Hits   []Hit  `json:"hits"`
}

// Segmenter splits a raw document into retrievable units.
type Segmenter interface {
	Segment(doc Document) ([]string, error)
}

// Embedder converts free text into a fixed-dimension vector.
// Embed and EmbedBatch must give identical vectors for identical text.
type Embedder interface {
	Name() string
	// Dimension returns the vector length, or 0 when the backend only
	// learns it on the first call.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ArtifactStore persists corpus indexes as a matched (vectors, texts) pair.
type ArtifactStore interface {
	Save(ctx context.Context, idx *CorpusIndex) error
	Load(ctx context.Context, name string) (*CorpusIndex, error)
}

// Searcher runs ranked nearest-neighbour search over one corpus.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (Result, error)
}

// Answerer produces the final natural-language answer from a system
// prompt and a grounded user prompt.
type Answerer interface {
	Name() string
	Answer(ctx context.Context, system, prompt string) (string, error)
}

// Researcher is an Answerer that gathers its own grounding through search
// tools and so receives the bare question.
type Researcher interface {
	Answerer
	Research(ctx context.Context, question string) (string, error)
}
