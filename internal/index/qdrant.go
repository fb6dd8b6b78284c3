package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"eurorag/internal/domain"
)

// errNotFound marks a 404 from Qdrant.
var errNotFound = errors.New("not found")

// QdrantStore is a minimal REST client that keeps each corpus in a
// versioned Qdrant collection reached through the alias <prefix><corpus>.
// Point ids are unit positions; searching stays local.
type QdrantStore struct {
	url       string
	apiKey    string
	prefix    string
	batchSize int
	client    *http.Client
	log       *slog.Logger
	now       func() time.Time
}

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
	BatchSize        int
	Logger           *slog.Logger
}

func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 256
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &QdrantStore{
		url:       cfg.URL,
		apiKey:    cfg.APIKey,
		prefix:    cfg.CollectionPrefix,
		batchSize: batch,
		client:    &http.Client{Timeout: timeout},
		log:       log,
		now:       time.Now,
	}
}

func (s *QdrantStore) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", s.url, url.PathEscape(name))
}

type aliasesResponse struct {
	Result struct {
		Aliases []struct {
			AliasName      string `json:"alias_name"`
			CollectionName string `json:"collection_name"`
		} `json:"aliases"`
	} `json:"result"`
}

// aliasTarget returns the collection alias currently points to, or "".
func (s *QdrantStore) aliasTarget(ctx context.Context, alias string) (string, error) {
	var resp aliasesResponse
	if err := s.do(ctx, http.MethodGet, s.url+"/aliases", nil, &resp); err != nil {
		return "", err
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == alias {
			return a.CollectionName, nil
		}
	}
	return "", nil
}

// Save writes every unit into a new collection and then repoints the corpus
// alias to it in a single alias operation. The previously aliased collection
// is dropped afterwards. A failure before the switch drops the new
// collection and leaves the alias on the old one.
func (s *QdrantStore) Save(ctx context.Context, idx *domain.CorpusIndex) error {
	const op = "save qdrant artifacts"
	fail := func(err error) error { return domain.NewError(domain.ErrBuild, op, idx.Name, err) }
	if idx.Dimension <= 0 {
		return fail(errors.New("invalid dimension"))
	}
	alias := s.prefix + idx.Name
	previous, err := s.aliasTarget(ctx, alias)
	if err != nil {
		return fail(err)
	}
	target := fmt.Sprintf("%s_%d", alias, s.now().UnixNano())
	if target == previous {
		target += "_1"
	}

	if err := s.fill(ctx, target, idx); err != nil {
		s.drop(target)
		return fail(err)
	}

	actions := []map[string]any{}
	if previous != "" {
		actions = append(actions, map[string]any{"delete_alias": map[string]any{"alias_name": alias}})
	}
	actions = append(actions, map[string]any{
		"create_alias": map[string]any{"collection_name": target, "alias_name": alias},
	})
	if err := s.do(ctx, http.MethodPost, s.url+"/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		s.drop(target)
		return fail(fmt.Errorf("switch alias %s: %w", alias, err))
	}
	if previous != "" {
		s.drop(previous)
	}
	s.log.Debug("qdrant collection switched", "corpus", idx.Name, "alias", alias, "collection", target, "previous", previous)
	return nil
}

func (s *QdrantStore) fill(ctx context.Context, collection string, idx *domain.CorpusIndex) error {
	coll := s.collectionURL(collection)
	body := map[string]any{
		"vectors": map[string]any{
			"size":     idx.Dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, coll, body, nil); err != nil {
		return err
	}

	builtAt := idx.BuiltAt.UTC().Format(time.RFC3339Nano)
	for start := 0; start < idx.Len(); start += s.batchSize {
		end := min(start+s.batchSize, idx.Len())
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":     i,
				"vector": idx.Records[i].Vector,
				"payload": map[string]any{
					"text":     idx.Records[i].Text,
					"count":    idx.Len(),
					"model":    idx.Model,
					"built_at": builtAt,
				},
			})
		}
		if err := s.do(ctx, http.MethodPut, coll+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
			return fmt.Errorf("upsert %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// drop deletes a collection on a detached context so cleanup also runs
// after the build context was cancelled.
func (s *QdrantStore) drop(collection string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(collection), nil, nil); err != nil && !errors.Is(err, errNotFound) {
		s.log.Warn("qdrant collection not dropped", "collection", collection, "error", err)
	}
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			ID      int       `json:"id"`
			Vector  []float32 `json:"vector"`
			Payload struct {
				Text    string `json:"text"`
				Count   int    `json:"count"`
				Model   string `json:"model"`
				BuiltAt string `json:"built_at"`
			} `json:"payload"`
		} `json:"points"`
		NextPageOffset *int `json:"next_page_offset"`
	} `json:"result"`
}

// Load scrolls every point of the aliased corpus collection in id order and
// checks the result against the unit count recorded at build time.
func (s *QdrantStore) Load(ctx context.Context, name string) (*domain.CorpusIndex, error) {
	const op = "load qdrant artifacts"
	fail := func(err error) error { return domain.NewError(domain.ErrIndexLoad, op, name, err) }
	coll := s.collectionURL(s.prefix + name)

	var (
		vectors [][]float32
		texts   []string
		offset  *int
		count   = -1
		model   string
		builtAt string
	)
	for {
		req := map[string]any{
			"limit":        s.batchSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			req["offset"] = *offset
		}
		var resp scrollResponse
		if err := s.do(ctx, http.MethodPost, coll+"/points/scroll", req, &resp); err != nil {
			return nil, fail(err)
		}
		for _, p := range resp.Result.Points {
			if p.ID != len(texts) {
				return nil, fail(fmt.Errorf("%w: expected point %d, found %d", domain.ErrMisaligned, len(texts), p.ID))
			}
			if count < 0 {
				count, model, builtAt = p.Payload.Count, p.Payload.Model, p.Payload.BuiltAt
			}
			vectors = append(vectors, p.Vector)
			texts = append(texts, p.Payload.Text)
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	if count != len(texts) {
		return nil, fail(fmt.Errorf("%w: collection holds %d points, build recorded %d", domain.ErrMisaligned, len(texts), max(count, 0)))
	}

	idx, err := domain.NewCorpusIndex(name, model, vectors, texts)
	if err != nil {
		return nil, fail(err)
	}
	if builtAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
			idx.BuiltAt = t
		}
	}
	return idx, nil
}

func (s *QdrantStore) do(ctx context.Context, method, endpoint string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, endpoint, errNotFound)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, endpoint, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
