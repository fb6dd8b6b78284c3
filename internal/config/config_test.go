package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 512, cfg.Embedder.Dimension)
	assert.Equal(t, "file", cfg.Index.Backend)
	require.Len(t, cfg.Corpora, 2)

	qa, ok := cfg.Corpus("qa")
	require.True(t, ok)
	assert.Equal(t, 20, qa.TopK)
	assert.Equal(t, "q_and_a", qa.Artifact)

	law, ok := cfg.Corpus("law")
	require.True(t, ok)
	assert.Equal(t, 10, law.TopK)
	assert.Equal(t, "legal", law.Kind)
	assert.Equal(t, []string{"Закон за Българската народна банка"}, law.Headers)

	require.NotNil(t, cfg.Answer.OpenAI)
	assert.Equal(t, "gpt-4.1", cfg.Answer.OpenAI.Model)
	require.NotNil(t, cfg.Answer.OpenAI.Temperature)
	assert.InDelta(t, 0.3, *cfg.Answer.OpenAI.Temperature, 1e-6)
	assert.Equal(t, 1024, cfg.Answer.OpenAI.MaxTokens)
	assert.Equal(t, "search_qa", qa.Tool)
	assert.Equal(t, "search_bnb_law", law.Tool)
	assert.False(t, cfg.Embedder.Serialize)
}

func TestLoadKeepsZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eurorag.yaml")
	data := `
answer:
  type: openai
  openai:
    temperature: 0
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Answer.OpenAI.Temperature)
	assert.Zero(t, *cfg.Answer.OpenAI.Temperature)
}

func TestLoadAgentDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eurorag.yaml")
	data := `
embedder:
  serialize: true
corpora:
  - name: faq
    kind: qa
    source: faq.txt
    top_k: 3
answer:
  type: agent
  agent:
    provider: anthropic
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Embedder.Serialize)
	require.NotNil(t, cfg.Answer.Agent)
	assert.Equal(t, "anthropic", cfg.Answer.Agent.Provider)
	assert.Equal(t, "gpt-4.1", cfg.Answer.Agent.Model)
	assert.Equal(t, 8, cfg.Answer.Agent.MaxSteps)
	assert.Equal(t, "search_faq", cfg.Corpora[0].Tool)
}

func TestLoadAppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eurorag.yaml")
	data := `
embedder:
  type: openai
index:
  backend: sqlite
  dir: /tmp/idx
corpora:
  - name: faq
    kind: qa
    source: faq.txt
    top_k: 3
answer:
  type: extractive
cache:
  type: redis
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 3, cfg.Embedder.OpenAI.MaxRetries)
	require.NotNil(t, cfg.Index.SQLite)
	assert.Equal(t, filepath.Join("/tmp/idx", "eurorag.db"), cfg.Index.SQLite.Path)
	require.Len(t, cfg.Corpora, 1)
	assert.Equal(t, "faq", cfg.Corpora[0].Artifact)
	assert.Equal(t, "faq", cfg.Corpora[0].Label)
	require.NotNil(t, cfg.Answer.Extractive)
	assert.Equal(t, 5, cfg.Answer.Extractive.MaxSentences)
	require.NotNil(t, cfg.Cache.Redis)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corpora: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EURORAG_LOG_LEVEL", "debug")
	t.Setenv("EURORAG_ANSWER_TYPE", "fantasy")
	t.Setenv("EURORAG_ANSWER_MODEL", "claude-sonnet-4")
	t.Setenv("EURORAG_CACHE_TYPE", "redis")
	t.Setenv("EURORAG_REDIS_ADDR", "cache:6380")
	t.Setenv("EURORAG_METRICS_ENABLED", "true")
	t.Setenv("EURORAG_EMBEDDER_SERIALIZE", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "fantasy", cfg.Answer.Type)
	require.NotNil(t, cfg.Answer.Fantasy)
	assert.Equal(t, "claude-sonnet-4", cfg.Answer.Fantasy.Model)
	require.NotNil(t, cfg.Cache.Redis)
	assert.Equal(t, "cache:6380", cfg.Cache.Redis.Addr)
	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Embedder.Serialize)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Embedder.Type = "word2vec"
	cfg.Corpora = append(cfg.Corpora, CorpusConfig{Name: "qa", Kind: "qa", TopK: 0, Tool: "search_bnb_law"})
	cfg.Answer = AnswerConfig{Type: "agent", Agent: &AgentConfig{MaxSteps: -1}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown embedder: "word2vec"`)
	assert.Contains(t, err.Error(), `duplicate corpus "qa"`)
	assert.Contains(t, err.Error(), "top_k must be positive")
	assert.Contains(t, err.Error(), `duplicate tool "search_bnb_law"`)
	assert.Contains(t, err.Error(), "max_steps must be positive")
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Corpora[0].TopK = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	qa, ok := loaded.Corpus("qa")
	require.True(t, ok)
	assert.Equal(t, 7, qa.TopK)
}
