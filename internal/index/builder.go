// Package index builds corpus indexes and persists them as artifact pairs
// in files, sqlite or Qdrant.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eurorag/internal/domain"
	"eurorag/internal/metrics"
)

// Builder turns a source document into a persisted corpus index.
type Builder struct {
	embedder domain.Embedder
	store    domain.ArtifactStore
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewBuilder wires a builder. log and m may be nil.
func NewBuilder(emb domain.Embedder, store domain.ArtifactStore, log *slog.Logger, m *metrics.Metrics) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{embedder: emb, store: store, log: log, metrics: m, now: time.Now}
}

// Build segments doc, embeds every unit in one batch, validates the
// vectors and saves the pair. Nothing is written unless every earlier
// step succeeded.
func (b *Builder) Build(ctx context.Context, corpus string, doc domain.Document, seg domain.Segmenter) (idx *domain.CorpusIndex, err error) {
	start := time.Now()
	defer func() { b.metrics.ObserveBuild(corpus, err) }()

	units, err := seg.Segment(doc)
	if err != nil {
		return nil, domain.NewError(domain.ErrBuild, "segment", corpus, err)
	}
	if len(units) == 0 {
		return nil, domain.Errorf(domain.ErrBuild, "segment", corpus, "no retrievable units in %s", doc.Path)
	}

	vectors, err := b.embedder.EmbedBatch(ctx, units)
	if err != nil {
		return nil, domain.NewError(domain.ErrEmbedding, "embed units", corpus, err)
	}
	if len(vectors) != len(units) {
		return nil, domain.NewError(domain.ErrEmbedding, "embed units", corpus,
			fmt.Errorf("%w: %d vectors for %d units", domain.ErrMisaligned, len(vectors), len(units)))
	}
	idx, err = domain.NewCorpusIndex(corpus, b.embedder.Name(), vectors, units)
	if err != nil {
		return nil, domain.NewError(domain.ErrEmbedding, "embed units", corpus, err)
	}
	if d := b.embedder.Dimension(); d > 0 && d != idx.Dimension {
		return nil, domain.NewError(domain.ErrEmbedding, "embed units", corpus,
			fmt.Errorf("%w: embedder reports %d, vectors have %d", domain.ErrDimensionMismatch, d, idx.Dimension))
	}
	idx.BuiltAt = b.now().UTC()

	if err := b.store.Save(ctx, idx); err != nil {
		return nil, err
	}
	b.metrics.SetIndexUnits(corpus, idx.Len())
	b.log.Info("corpus indexed",
		"corpus", corpus,
		"source", doc.Path,
		"units", idx.Len(),
		"dimension", idx.Dimension,
		"model", idx.Model,
		"duration", time.Since(start))
	return idx, nil
}
