package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type string `yaml:"type"`
	// Dimension is the output size of the hashing embedder.
	Dimension int `yaml:"dimension,omitempty"`
	// Coalesce deduplicates concurrent identical embed calls.
	Coalesce bool `yaml:"coalesce"`
	// Serialize allows one embed call in flight at a time, for providers
	// that reject concurrent requests on one key.
	Serialize bool                  `yaml:"serialize"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// SQLiteConfig locates the sqlite artifact database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant artifact store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
	BatchSize        int    `yaml:"batch_size"`
}

// IndexConfig selects where corpus indexes are persisted.
type IndexConfig struct {
	Backend string        `yaml:"backend"`
	Dir     string        `yaml:"dir"`
	SQLite  *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant  *QdrantConfig `yaml:"qdrant,omitempty"`
}

// CorpusConfig describes one named corpus: where its source lives, how it
// is segmented and how many hits a query takes from it.
type CorpusConfig struct {
	Name     string   `yaml:"name"`
	Label    string   `yaml:"label"`
	Kind     string   `yaml:"kind"`
	Source   string   `yaml:"source"`
	Artifact string   `yaml:"artifact"`
	TopK     int      `yaml:"top_k"`
	Headers  []string `yaml:"headers,omitempty"`
	// Tool names the search tool the agent answerer gets for this corpus.
	Tool string `yaml:"tool,omitempty"`
}

// OpenAIAnswerConfig configures chat-completion answer generation.
type OpenAIAnswerConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	// Temperature is a pointer so an explicit 0 survives defaulting.
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// FantasyConfig configures answer generation through a fantasy provider.
type FantasyConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// AgentConfig configures the tool-calling agent, which searches the corpora
// itself instead of receiving grounding in the prompt.
type AgentConfig struct {
	FantasyConfig `yaml:",inline"`
	MaxSteps      int `yaml:"max_steps"`
}

// ExtractiveConfig configures the offline extractive answerer.
type ExtractiveConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AnswerConfig selects and configures the answer generator.
type AnswerConfig struct {
	Type       string              `yaml:"type"`
	OpenAI     *OpenAIAnswerConfig `yaml:"openai,omitempty"`
	Fantasy    *FantasyConfig      `yaml:"fantasy,omitempty"`
	Agent      *AgentConfig        `yaml:"agent,omitempty"`
	Extractive *ExtractiveConfig   `yaml:"extractive,omitempty"`
}

// RedisConfig contains connection details for the redis result cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig selects the retrieval result cache.
type CacheConfig struct {
	Type    string       `yaml:"type"`
	TTLSecs int          `yaml:"ttl_secs"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// LoggingConfig controls the default slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder EmbedderConfig `yaml:"embedder"`
	Index    IndexConfig    `yaml:"index"`
	Corpora  []CorpusConfig `yaml:"corpora"`
	Answer   AnswerConfig   `yaml:"answer"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Corpus returns the corpus configuration with the given name.
func (c *AppConfig) Corpus(name string) (CorpusConfig, bool) {
	for _, corpus := range c.Corpora {
		if corpus.Name == name {
			return corpus, true
		}
	}
	return CorpusConfig{}, false
}

// Validate rejects configurations no component could be assembled from.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder: %q", c.Embedder.Type))
	}
	switch c.Index.Backend {
	case "file", "sqlite", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("unknown index backend: %q", c.Index.Backend))
	}
	switch c.Answer.Type {
	case "openai", "fantasy", "agent", "extractive":
	default:
		errs = append(errs, fmt.Errorf("unknown answer generator: %q", c.Answer.Type))
	}
	if c.Answer.Type == "agent" && c.Answer.Agent != nil && c.Answer.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent: max_steps must be positive, got %d", c.Answer.Agent.MaxSteps))
	}
	switch c.Cache.Type {
	case "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown cache: %q", c.Cache.Type))
	}
	if len(c.Corpora) == 0 {
		errs = append(errs, errors.New("no corpora configured"))
	}
	seen := make(map[string]struct{}, len(c.Corpora))
	tools := make(map[string]struct{}, len(c.Corpora))
	for i, corpus := range c.Corpora {
		if corpus.Name == "" {
			errs = append(errs, fmt.Errorf("corpora[%d]: empty name", i))
			continue
		}
		if _, dup := seen[corpus.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate corpus %q", corpus.Name))
		}
		seen[corpus.Name] = struct{}{}
		if corpus.Tool != "" {
			if _, dup := tools[corpus.Tool]; dup {
				errs = append(errs, fmt.Errorf("corpus %q: duplicate tool %q", corpus.Name, corpus.Tool))
			}
			tools[corpus.Tool] = struct{}{}
		}
		if corpus.TopK <= 0 {
			errs = append(errs, fmt.Errorf("corpus %q: top_k must be positive, got %d", corpus.Name, corpus.TopK))
		}
		switch corpus.Kind {
		case "qa", "legal":
		default:
			errs = append(errs, fmt.Errorf("corpus %q: unknown kind %q", corpus.Name, corpus.Kind))
		}
	}
	return errors.Join(errs...)
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./eurorag.yaml first, then ~/.config/eurorag/config.yaml.
// If neither exists, it writes defaults to ~/.config/eurorag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "eurorag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "eurorag", "config.yaml"), nil
}

// DefaultCorpora is the reference deployment: the BNB euro Q&A page and the BNB law.
func DefaultCorpora() []CorpusConfig {
	return []CorpusConfig{
		{
			Name:     "qa",
			Label:    "Closest Q and A documents from the Bulgarian National Bank",
			Kind:     "qa",
			Source:   "resources/q_and_a.txt",
			Artifact: "q_and_a",
			TopK:     20,
			Tool:     "search_qa",
		},
		{
			Name:     "law",
			Label:    "Closest articles from the Bulgarian National Bank law",
			Kind:     "legal",
			Source:   "resources/newbnblaw_bg.pdf",
			Artifact: "bnb_law",
			TopK:     10,
			Headers:  []string{"Закон за Българската народна банка"},
			Tool:     "search_bnb_law",
		},
	}
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "hashing", Coalesce: true},
		Index:    IndexConfig{Backend: "file", Dir: "embeddings"},
		Corpora:  DefaultCorpora(),
		Answer:   AnswerConfig{Type: "openai"},
		Cache:    CacheConfig{Type: "none"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Metrics:  MetricsConfig{Addr: ":9090"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 128
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "file"
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "embeddings"
	}
	if cfg.Index.Backend == "sqlite" {
		if cfg.Index.SQLite == nil {
			cfg.Index.SQLite = &SQLiteConfig{}
		}
		if cfg.Index.SQLite.Path == "" {
			cfg.Index.SQLite.Path = filepath.Join(cfg.Index.Dir, "eurorag.db")
		}
	}
	if cfg.Index.Backend == "qdrant" {
		if cfg.Index.Qdrant == nil {
			cfg.Index.Qdrant = &QdrantConfig{}
		}
		q := cfg.Index.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "eurorag_"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 30
		}
		if q.BatchSize == 0 {
			q.BatchSize = 256
		}
	}

	if len(cfg.Corpora) == 0 {
		cfg.Corpora = DefaultCorpora()
	}
	for i := range cfg.Corpora {
		c := &cfg.Corpora[i]
		if c.Artifact == "" {
			c.Artifact = c.Name
		}
		if c.Label == "" {
			c.Label = c.Name
		}
		if c.Tool == "" {
			c.Tool = "search_" + c.Name
		}
	}

	if cfg.Answer.Type == "" {
		cfg.Answer.Type = "openai"
	}
	switch cfg.Answer.Type {
	case "openai":
		if cfg.Answer.OpenAI == nil {
			cfg.Answer.OpenAI = &OpenAIAnswerConfig{}
		}
		o := cfg.Answer.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4.1"
		}
		if o.Temperature == nil {
			t := float32(0.3)
			o.Temperature = &t
		}
		if o.MaxTokens == 0 {
			o.MaxTokens = 1024
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 60
		}
	case "fantasy":
		if cfg.Answer.Fantasy == nil {
			cfg.Answer.Fantasy = &FantasyConfig{}
		}
		f := cfg.Answer.Fantasy
		if f.Provider == "" {
			f.Provider = "openai"
		}
		if f.Model == "" {
			f.Model = "gpt-4.1"
		}
		if f.APIKeyEnv == "" {
			f.APIKeyEnv = "OPENAI_API_KEY"
		}
	case "agent":
		if cfg.Answer.Agent == nil {
			cfg.Answer.Agent = &AgentConfig{}
		}
		a := cfg.Answer.Agent
		if a.Provider == "" {
			a.Provider = "openai"
		}
		if a.Model == "" {
			a.Model = "gpt-4.1"
		}
		if a.APIKeyEnv == "" {
			a.APIKeyEnv = "OPENAI_API_KEY"
		}
		if a.MaxSteps == 0 {
			a.MaxSteps = 8
		}
	case "extractive":
		if cfg.Answer.Extractive == nil {
			cfg.Answer.Extractive = &ExtractiveConfig{}
		}
		if cfg.Answer.Extractive.MaxSentences == 0 {
			cfg.Answer.Extractive.MaxSentences = 5
		}
	}

	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "none"
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = 600
	}
	if cfg.Cache.Type == "redis" {
		if cfg.Cache.Redis == nil {
			cfg.Cache.Redis = &RedisConfig{}
		}
		if cfg.Cache.Redis.Addr == "" {
			cfg.Cache.Redis.Addr = "localhost:6379"
		}
		if cfg.Cache.Redis.Prefix == "" {
			cfg.Cache.Redis.Prefix = "eurorag:"
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// applyEnvOverrides lets EURORAG_* variables win over file values. Selecting a
// new type through the environment re-runs the defaults for that section.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("EURORAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EURORAG_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("EURORAG_EMBEDDER_TYPE"); v != "" {
		cfg.Embedder.Type = v
	}
	if v := os.Getenv("EURORAG_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("EURORAG_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("EURORAG_ANSWER_TYPE"); v != "" {
		cfg.Answer.Type = v
	}
	if v := os.Getenv("EURORAG_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	applyConfigDefaults(cfg)

	if v := os.Getenv("EURORAG_EMBEDDER_MODEL"); v != "" && cfg.Embedder.OpenAI != nil {
		cfg.Embedder.OpenAI.Model = v
	}
	if v := os.Getenv("EURORAG_ANSWER_MODEL"); v != "" {
		if cfg.Answer.OpenAI != nil {
			cfg.Answer.OpenAI.Model = v
		}
		if cfg.Answer.Fantasy != nil {
			cfg.Answer.Fantasy.Model = v
		}
		if cfg.Answer.Agent != nil {
			cfg.Answer.Agent.Model = v
		}
	}
	if v := os.Getenv("EURORAG_EMBEDDER_SERIALIZE"); v != "" {
		if serialize, err := strconv.ParseBool(v); err == nil {
			cfg.Embedder.Serialize = serialize
		}
	}
	if v := os.Getenv("EURORAG_REDIS_ADDR"); v != "" && cfg.Cache.Redis != nil {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("EURORAG_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("EURORAG_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
}
