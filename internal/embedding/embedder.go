// Package embedding assembles the configured domain.Embedder and provides
// wrappers that adapt an embedder's concurrency behaviour.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eurorag/internal/config"
	"eurorag/internal/domain"
	"eurorag/internal/embedding/hashing"
	"eurorag/internal/embedding/openai"
)

// New builds the embedder selected by cfg.Type.
func New(cfg config.EmbedderConfig) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Type {
	case "hashing", "":
		emb = hashing.New(cfg.Dimension)
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			Dimensions: cfg.OpenAI.Dimensions,
			BatchSize:  cfg.OpenAI.BatchSize,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	if cfg.Serialize {
		emb = Serialized(emb)
	}
	// coalescing sits outside so identical texts share one queued call
	if cfg.Coalesce {
		emb = Coalescing(emb)
	}
	return emb, nil
}

type serialized struct {
	domain.Embedder
	mu sync.Mutex
}

// Serialized wraps an embedder that is not safe for concurrent use. Only
// the embed calls are serialized; callers can still search concurrently.
func Serialized(e domain.Embedder) domain.Embedder {
	return &serialized{Embedder: e}
}

func (s *serialized) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Embedder.Embed(ctx, text)
}

func (s *serialized) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Embedder.EmbedBatch(ctx, texts)
}

type coalescing struct {
	domain.Embedder
	group singleflight.Group
}

// Coalescing merges concurrent Embed calls for the same text into one call
// to the wrapped embedder. A fan-out over several corpora that share one
// embedder then embeds the query once.
func Coalescing(e domain.Embedder) domain.Embedder {
	return &coalescing{Embedder: e}
}

func (c *coalescing) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err, _ := c.group.Do(text, func() (any, error) {
		return c.Embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	vec := v.([]float32)
	// callers own their slice
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}
