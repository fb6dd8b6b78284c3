// Package vectorstore opens persisted corpus indexes for querying.
package vectorstore

import (
	"context"
	"log/slog"

	"eurorag/internal/domain"
	"eurorag/internal/vectorstore/memory"
)

// Load reads the named corpus from artifacts and returns a searchable store.
// A model name that differs from the one recorded at build time is only
// logged; a dimension difference fails in memory.New.
func Load(ctx context.Context, artifacts domain.ArtifactStore, name string, emb domain.Embedder, opts ...memory.Option) (*memory.Store, error) {
	idx, err := artifacts.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if idx.Model != "" && idx.Model != emb.Name() {
		slog.Warn("index built with a different embedder",
			"corpus", name, "index_model", idx.Model, "embedder", emb.Name())
	}
	return memory.New(idx, emb, opts...)
}
