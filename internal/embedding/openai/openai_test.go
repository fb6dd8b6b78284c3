package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeServer answers /embeddings with vectors [len(input), index, 1] and
// returns the data in reverse order to exercise index reordering.
func fakeServer(t *testing.T, failFirst int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if int(n) <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{
				Object:    "embedding",
				Embedding: []float32{float32(len(req.Input[i])), float32(i), 1},
				Index:     i,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
}

func newTestClient(t *testing.T, url string, batch, retries int) *Client {
	t.Helper()
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:    url + "/v1",
		APIKeyEnv:  "TEST_OPENAI_KEY",
		Model:      "test-embed",
		BatchSize:  batch,
		MaxRetries: retries,
	})
	require.NoError(t, err)
	return c
}

func TestEmbedBatchKeepsInputOrder(t *testing.T) {
	var calls atomic.Int32
	srv := fakeServer(t, 0, &calls)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2, 0)
	assert.Equal(t, 0, c.Dimension())

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1, 1}, vecs[1])
	assert.Equal(t, []float32{3, 0, 1}, vecs[2])
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbedSingle(t *testing.T) {
	var calls atomic.Int32
	srv := fakeServer(t, 0, &calls)
	defer srv.Close()

	v, err := newTestClient(t, srv.URL, 8, 0).Embed(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 0, 1}, v)
}

func TestEmbedRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := fakeServer(t, 1, &calls)
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 8, 2).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedNoRetryFails(t *testing.T) {
	var calls atomic.Int32
	srv := fakeServer(t, 1, &calls)
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 8, 0).Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("EMPTY_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "EMPTY_KEY"})
	assert.Error(t, err)
}

func TestKnownDimension(t *testing.T) {
	assert.Equal(t, 1536, knownDimension("text-embedding-3-small", 0))
	assert.Equal(t, 3072, knownDimension("text-embedding-3-large", 0))
	assert.Equal(t, 256, knownDimension("text-embedding-3-large", 256))
	assert.Equal(t, 0, knownDimension("nomic-embed-text", 0))
}
