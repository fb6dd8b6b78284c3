// Package memory implements exact brute-force cosine search over an
// immutable in-memory corpus index.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"eurorag/internal/domain"
	"eurorag/internal/metrics"
)

// Store answers nearest-neighbour queries against one corpus. It is
// read-only after New and safe for concurrent use when its embedder is.
type Store struct {
	name     string
	records  []domain.Record
	norms    []float64
	dim      int
	embedder domain.Embedder
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger used for per-search debug records.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// WithMetrics records search counts and latency.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

// New validates idx and precomputes the stored vector norms. When the
// embedder already knows its dimension it must match the index.
func New(idx *domain.CorpusIndex, emb domain.Embedder, opts ...Option) (*Store, error) {
	const op = "open vector store"
	if err := idx.Validate(); err != nil {
		return nil, domain.NewError(domain.ErrIndexLoad, op, idx.Name, err)
	}
	if d := emb.Dimension(); d > 0 && idx.Len() > 0 && d != idx.Dimension {
		return nil, domain.NewError(domain.ErrIndexLoad, op, idx.Name,
			fmt.Errorf("%w: embedder %s produces %d, index holds %d", domain.ErrDimensionMismatch, emb.Name(), d, idx.Dimension))
	}
	s := &Store{
		name:     idx.Name,
		records:  idx.Records,
		norms:    make([]float64, len(idx.Records)),
		dim:      idx.Dimension,
		embedder: emb,
		log:      slog.Default(),
	}
	for i, r := range idx.Records {
		s.norms[i] = domain.Norm(r.Vector)
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name returns the corpus name.
func (s *Store) Name() string { return s.name }

// Len returns the number of units.
func (s *Store) Len() int { return len(s.records) }

// Dimension returns the vector length of the index.
func (s *Store) Dimension() int { return s.dim }

// Search embeds query and returns the topK closest units.
func (s *Store) Search(ctx context.Context, query string, topK int) (res domain.Result, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveSearch(s.name, time.Since(start), err)
		s.log.Debug("search", "corpus", s.name, "top_k", topK, "hits", len(res.Hits), "duration", time.Since(start), "error", err)
	}()

	if topK <= 0 {
		return domain.Result{}, domain.Errorf(domain.ErrQuery, "search", s.name, "top_k must be positive, got %d", topK)
	}
	if len(s.records) == 0 {
		return domain.Result{Corpus: s.name, Hits: []domain.Hit{}}, nil
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return domain.Result{}, domain.NewError(domain.ErrEmbedding, "embed query", s.name, err)
	}
	return s.SearchVector(q, topK)
}

// SearchVector ranks the index against a precomputed query vector.
// Distances are 1 - cosine similarity; ties keep index order.
func (s *Store) SearchVector(q []float32, topK int) (domain.Result, error) {
	if topK <= 0 {
		return domain.Result{}, domain.Errorf(domain.ErrQuery, "search", s.name, "top_k must be positive, got %d", topK)
	}
	if len(s.records) == 0 {
		return domain.Result{Corpus: s.name, Hits: []domain.Hit{}}, nil
	}
	if len(q) != s.dim {
		return domain.Result{}, domain.NewError(domain.ErrEmbedding, "search", s.name,
			fmt.Errorf("%w: query has %d values, index holds %d", domain.ErrDimensionMismatch, len(q), s.dim))
	}
	qn := domain.Norm(q)
	if qn == 0 {
		return domain.Result{}, domain.NewError(domain.ErrEmbedding, "search", s.name, domain.ErrZeroVector)
	}

	dist := make([]float64, len(s.records))
	order := make([]int, len(s.records))
	for i, r := range s.records {
		dist[i] = 1 - dot(q, r.Vector)/(qn*s.norms[i])
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	k := min(topK, len(order))
	hits := make([]domain.Hit, k)
	for rank, i := range order[:k] {
		hits[rank] = domain.Hit{Rank: rank + 1, Score: 1 - dist[i], Text: s.records[i].Text}
	}
	return domain.Result{Corpus: s.name, Hits: hits}, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
