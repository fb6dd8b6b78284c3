package answer

import (
	"context"
	"fmt"
	"os"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
)

// FantasyConfig selects a fantasy provider and model.
type FantasyConfig struct {
	Provider  string
	APIKeyEnv string
	BaseURL   string
	Model     string
}

// Fantasy answers through any provider fantasy supports.
type Fantasy struct {
	model fantasy.LanguageModel
	name  string
}

func NewFantasy(ctx context.Context, cfg FantasyConfig) (*Fantasy, error) {
	model, err := languageModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Fantasy{model: model, name: cfg.Provider + "/" + cfg.Model}, nil
}

// languageModel resolves cfg to a model of the selected provider.
func languageModel(ctx context.Context, cfg FantasyConfig) (fantasy.LanguageModel, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}

	var provider fantasy.Provider
	var err error
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(key)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		provider, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(key)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		provider, err = anthropic.New(opts...)
	case "openrouter":
		provider, err = openrouter.New(openrouter.WithAPIKey(key))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("get language model: %w", err)
	}
	return model, nil
}

func (f *Fantasy) Name() string { return f.name }

// Answer runs a single agent turn with system as the system message.
func (f *Fantasy) Answer(ctx context.Context, system, prompt string) (string, error) {
	agent := fantasy.NewAgent(f.model, fantasy.WithSystemPrompt(system))
	result, err := agent.Generate(ctx, fantasy.AgentCall{
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return result.Response.Content.Text(), nil
}
