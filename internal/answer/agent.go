package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"charm.land/fantasy"

	"eurorag/internal/domain"
	"eurorag/internal/retrieval"
)

// AgentSystemPrompt instructs the agent to ground every answer with its
// search tools.
var AgentSystemPrompt = fmt.Sprintf(`You are an expert at the adoption of the Euro in Bulgaria. You will get questions from Bulgarian citizens and you will answer them based on the latest information available.

You will always use the search tools that you have to find the latest information on the topic. The tools provide you with official Q-and-A documents from the Bulgarian National Bank, as well as parts of the Bulgarian National Bank law.
When responding, you will always state that the source of information is the Bulgarian National Bank and you will provide the source - %s for the Q-and-A and point to the names (not the indices) of the questions that provided the information or the respective article of the law.

In case the sources are not sufficient to answer the question, you can continue searching with rephrased queries.

If the question is not about the Euro adoption, you will respond with "%s"`, SourceURL, Refusal)

// SearchTool exposes one corpus to the agent under Name.
type SearchTool struct {
	Name     string
	Corpus   domain.NamedCorpus
	Searcher domain.Searcher
}

type searchInput struct {
	Query string `json:"query" description:"What to look for, ideally phrased in Bulgarian"`
}

// Agent answers by calling corpus search tools in a loop until the model
// stops asking for them or the step budget runs out.
type Agent struct {
	model    fantasy.LanguageModel
	name     string
	tools    []fantasy.AgentTool
	maxSteps int
	log      *slog.Logger
}

func NewAgent(model fantasy.LanguageModel, name string, tools []SearchTool, maxSteps int, log *slog.Logger) (*Agent, error) {
	if len(tools) == 0 {
		return nil, errors.New("agent needs at least one search tool")
	}
	if log == nil {
		log = slog.Default()
	}
	if maxSteps <= 0 {
		maxSteps = 8
	}
	a := &Agent{model: model, name: name, maxSteps: maxSteps, log: log}
	for _, t := range tools {
		if t.Name == "" || t.Searcher == nil {
			return nil, fmt.Errorf("agent tool for corpus %q is incomplete", t.Corpus.Name)
		}
		a.tools = append(a.tools, a.searchTool(t))
	}
	return a, nil
}

func (a *Agent) searchTool(t SearchTool) fantasy.AgentTool {
	label := t.Corpus.Label
	if label == "" {
		label = t.Corpus.Name
	}
	description := fmt.Sprintf("Semantic search over %s. Returns the %d closest entries as numbered blocks with similarity scores.", label, t.Corpus.TopK)
	return fantasy.NewAgentTool(t.Name, description,
		func(ctx context.Context, in searchInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				return fantasy.NewTextErrorResponse("query must not be empty"), nil
			}
			res, err := t.Searcher.Search(ctx, query, t.Corpus.TopK)
			if err != nil {
				a.log.Warn("agent search failed", "tool", t.Name, "error", err)
				return fantasy.NewTextErrorResponse(err.Error()), nil
			}
			a.log.Debug("agent search", "tool", t.Name, "query", query, "hits", len(res.Hits))
			return fantasy.NewTextResponse(retrieval.FormatResult(res)), nil
		})
}

func (a *Agent) Name() string { return "agent/" + a.name }

// Answer runs the tool loop with system as the system message.
func (a *Agent) Answer(ctx context.Context, system, prompt string) (string, error) {
	agent := fantasy.NewAgent(a.model,
		fantasy.WithSystemPrompt(system),
		fantasy.WithTools(a.tools...),
		fantasy.WithStopConditions(fantasy.StepCountIs(a.maxSteps)),
	)
	result, err := agent.Generate(ctx, fantasy.AgentCall{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("agent generate: %w", err)
	}
	a.log.Debug("agent finished", "steps", len(result.Steps))
	return result.Response.Content.Text(), nil
}

// Research answers the bare question, leaving retrieval to the tools.
func (a *Agent) Research(ctx context.Context, question string) (string, error) {
	return a.Answer(ctx, AgentSystemPrompt, question)
}
