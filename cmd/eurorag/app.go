package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"eurorag/internal/answer"
	"eurorag/internal/cache"
	"eurorag/internal/config"
	"eurorag/internal/domain"
	"eurorag/internal/embedding"
	"eurorag/internal/index"
	"eurorag/internal/logger"
	"eurorag/internal/metrics"
	"eurorag/internal/retrieval"
	"eurorag/internal/service"
	"eurorag/internal/vectorstore"
	"eurorag/internal/vectorstore/memory"
)

// app holds the configuration and the lazily assembled components shared
// by the subcommands of one invocation.
type app struct {
	cfg      *config.AppConfig
	cfgPath  string
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	emb       domain.Embedder
	artifacts domain.ArtifactStore
	closers   []io.Closer
}

func (a *app) load(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	var err error
	if path == "" {
		a.cfg, a.cfgPath, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(path)
		a.cfgPath = path
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", a.cfgPath, err)
	}

	level := a.cfg.Logging.Level
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		level = l
	}
	logger.Setup(level, a.cfg.Logging.Format)

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	if a.cfg.Metrics.Enabled {
		if _, err := metrics.Serve(cmd.Context(), a.cfg.Metrics.Addr, a.registry); err != nil {
			return err
		}
	}
	slog.Debug("config loaded", "path", a.cfgPath, "corpora", len(a.cfg.Corpora))
	return nil
}

func (a *app) embedder() (domain.Embedder, error) {
	if a.emb != nil {
		return a.emb, nil
	}
	emb, err := embedding.New(a.cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	a.emb = emb
	return emb, nil
}

func (a *app) store() (domain.ArtifactStore, error) {
	if a.artifacts != nil {
		return a.artifacts, nil
	}
	st, closer, err := index.NewStore(a.cfg.Index, a.cfg.Corpora, logger.WithComponent("index"))
	if err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}
	a.artifacts = st
	a.closers = append(a.closers, closer)
	return st, nil
}

// corpusConfigs returns the named corpora in configured order, or all of
// them when names is empty.
func (a *app) corpusConfigs(names []string) ([]config.CorpusConfig, error) {
	if len(names) == 0 {
		return a.cfg.Corpora, nil
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := a.cfg.Corpus(n); !ok {
			return nil, domain.Errorf(domain.ErrQuery, "select corpora", n, "unknown corpus")
		}
		want[n] = struct{}{}
	}
	out := make([]config.CorpusConfig, 0, len(names))
	for _, c := range a.cfg.Corpora {
		if _, ok := want[c.Name]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *app) resultCache(ctx context.Context) (*cache.ResultCache, error) {
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	rc, err := cache.FromConfig(ctx, a.cfg.Cache, emb.Name(), logger.WithComponent("cache"), a.metrics)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	if rc != nil {
		a.closers = append(a.closers, rc)
	}
	return rc, nil
}

// service loads the named corpora and wires the RAG service. The answer
// generator is only built when withAnswerer is set, so retrieval works
// without chat credentials.
func (a *app) service(ctx context.Context, names []string, withAnswerer bool) (*service.RAGService, error) {
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	st, err := a.store()
	if err != nil {
		return nil, err
	}
	configs, err := a.corpusConfigs(names)
	if err != nil {
		return nil, err
	}

	corpora := make([]retrieval.Corpus, 0, len(configs))
	tools := make([]answer.SearchTool, 0, len(configs))
	for _, c := range configs {
		searcher, err := vectorstore.Load(ctx, st, c.Name, emb,
			memory.WithLogger(logger.WithComponent("vectorstore")),
			memory.WithMetrics(a.metrics))
		if err != nil {
			return nil, err
		}
		named := domain.NamedCorpus{Name: c.Name, TopK: c.TopK, Label: c.Label}
		corpora = append(corpora, retrieval.Corpus{NamedCorpus: named, Searcher: searcher})
		tools = append(tools, answer.SearchTool{Name: c.Tool, Corpus: named, Searcher: searcher})
	}

	rc, err := a.resultCache(ctx)
	if err != nil {
		return nil, err
	}

	var answerer domain.Answerer
	if withAnswerer {
		answerer, err = answer.New(ctx, a.cfg.Answer, tools...)
		if err != nil {
			return nil, fmt.Errorf("answer generator: %w", err)
		}
	}

	orch := retrieval.NewOrchestrator(logger.WithComponent("retrieval"), a.metrics)
	return service.NewRAGService(corpora, orch, answerer, rc, logger.WithComponent("service")), nil
}

// Close releases every backend opened during the invocation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.artifacts = nil
	a.emb = nil
	return errors.Join(errs...)
}
