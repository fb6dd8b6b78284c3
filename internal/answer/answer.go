// Package answer turns a question and its grounding payload into a final
// answer, through a chat model, a tool-calling agent that runs its own
// searches, or an offline extractive fallback.
package answer

import (
	"context"
	"fmt"
	"time"

	"eurorag/internal/config"
	"eurorag/internal/domain"
	"eurorag/internal/logger"
)

// New builds the answer generator selected by cfg.Type. tools are only
// used by the agent, which needs at least one.
func New(ctx context.Context, cfg config.AnswerConfig, tools ...SearchTool) (domain.Answerer, error) {
	switch cfg.Type {
	case "openai", "":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai answer config missing")
		}
		temperature := float32(0.3)
		if cfg.OpenAI.Temperature != nil {
			temperature = *cfg.OpenAI.Temperature
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Temperature: temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
	case "fantasy":
		if cfg.Fantasy == nil {
			return nil, fmt.Errorf("fantasy answer config missing")
		}
		return NewFantasy(ctx, FantasyConfig{
			Provider:  cfg.Fantasy.Provider,
			APIKeyEnv: cfg.Fantasy.APIKeyEnv,
			BaseURL:   cfg.Fantasy.BaseURL,
			Model:     cfg.Fantasy.Model,
		})
	case "agent":
		if cfg.Agent == nil {
			return nil, fmt.Errorf("agent answer config missing")
		}
		fc := FantasyConfig{
			Provider:  cfg.Agent.Provider,
			APIKeyEnv: cfg.Agent.APIKeyEnv,
			BaseURL:   cfg.Agent.BaseURL,
			Model:     cfg.Agent.Model,
		}
		model, err := languageModel(ctx, fc)
		if err != nil {
			return nil, err
		}
		return NewAgent(model, fc.Provider+"/"+fc.Model, tools, cfg.Agent.MaxSteps, logger.WithComponent("agent"))
	case "extractive":
		maxSentences := 0
		if cfg.Extractive != nil {
			maxSentences = cfg.Extractive.MaxSentences
		}
		return NewExtractive(maxSentences), nil
	default:
		return nil, fmt.Errorf("unknown answer generator: %s", cfg.Type)
	}
}
