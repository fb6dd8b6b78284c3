// Package retrieval fans a query out over several corpora and renders the
// ranked results as the grounding payload for answer generation.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"eurorag/internal/domain"
	"eurorag/internal/metrics"
)

// Corpus is a named corpus paired with the searcher over its index.
type Corpus struct {
	domain.NamedCorpus
	Searcher domain.Searcher
}

// Orchestrator runs one search per corpus concurrently.
type Orchestrator struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewOrchestrator creates an orchestrator. Both arguments may be nil.
func NewOrchestrator(log *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{log: log, metrics: m}
}

// Retrieve searches every corpus with its own top_k and waits for all of
// them. The first failure cancels the remaining searches and is returned.
// On success every requested corpus name is a key of the result map.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, corpora []Corpus) (map[string]domain.Result, error) {
	const op = "retrieve"
	if len(corpora) == 0 {
		return nil, domain.Errorf(domain.ErrQuery, op, "", "no corpora requested")
	}
	seen := make(map[string]struct{}, len(corpora))
	for _, c := range corpora {
		if _, dup := seen[c.Name]; dup {
			return nil, domain.Errorf(domain.ErrQuery, op, c.Name, "corpus requested twice")
		}
		seen[c.Name] = struct{}{}
		if c.TopK <= 0 {
			return nil, domain.Errorf(domain.ErrQuery, op, c.Name, "top_k must be positive, got %d", c.TopK)
		}
		if c.Searcher == nil {
			return nil, domain.Errorf(domain.ErrQuery, op, c.Name, "corpus has no searcher")
		}
	}

	start := time.Now()
	results := make([]domain.Result, len(corpora))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range corpora {
		g.Go(func() error {
			res, err := c.Searcher.Search(gctx, query, c.TopK)
			if err != nil {
				return fmt.Errorf("corpus %s: %w", c.Name, err)
			}
			res.Corpus = c.Name
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.log.Warn("retrieval failed", "corpora", len(corpora), "error", err)
		return nil, err
	}

	out := make(map[string]domain.Result, len(corpora))
	hits := 0
	for i, c := range corpora {
		if results[i].Hits == nil {
			results[i].Hits = []domain.Hit{}
		}
		out[c.Name] = results[i]
		hits += len(results[i].Hits)
	}
	o.metrics.ObserveRetrieve(time.Since(start))
	o.log.Debug("retrieved", "corpora", len(corpora), "hits", hits, "duration", time.Since(start))
	return out, nil
}
