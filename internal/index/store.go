package index

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"eurorag/internal/config"
	"eurorag/internal/domain"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewStore builds the artifact store selected by cfg.Backend. The returned
// closer releases backend resources.
func NewStore(cfg config.IndexConfig, corpora []config.CorpusConfig, log *slog.Logger) (domain.ArtifactStore, io.Closer, error) {
	switch cfg.Backend {
	case "file", "":
		artifacts := make(map[string]string, len(corpora))
		for _, c := range corpora {
			artifacts[c.Name] = c.Artifact
		}
		return NewFileStore(cfg.Dir, artifacts, log), nopCloser{}, nil
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, nil, fmt.Errorf("sqlite index config missing")
		}
		st, err := OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, nil, fmt.Errorf("qdrant index config missing")
		}
		return NewQdrantStore(QdrantConfig{
			URL:              cfg.Qdrant.URL,
			APIKey:           cfg.Qdrant.APIKey,
			CollectionPrefix: cfg.Qdrant.CollectionPrefix,
			Timeout:          time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
			BatchSize:        cfg.Qdrant.BatchSize,
			Logger:           log,
		}), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown index backend: %s", cfg.Backend)
	}
}
