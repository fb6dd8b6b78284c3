// Package service ties retrieval, caching and answer generation together.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eurorag/internal/answer"
	"eurorag/internal/cache"
	"eurorag/internal/domain"
	"eurorag/internal/retrieval"
)

// Answer is the outcome of one question.
type Answer struct {
	Question  string                   `json:"question"`
	Text      string                   `json:"answer"`
	Grounding string                   `json:"grounding"`
	Results   map[string]domain.Result `json:"results"`
	Cached    bool                     `json:"cached"`
	Duration  time.Duration            `json:"duration"`
}

// RAGService answers questions from the configured corpora.
type RAGService struct {
	corpora      []retrieval.Corpus
	orchestrator *retrieval.Orchestrator
	cache        *cache.ResultCache
	answerer     domain.Answerer
	system       string
	log          *slog.Logger
}

// NewRAGService wires the service. cache and answerer may be nil; without
// an answerer only retrieval is available.
func NewRAGService(corpora []retrieval.Corpus, orch *retrieval.Orchestrator, answerer domain.Answerer, rc *cache.ResultCache, log *slog.Logger) *RAGService {
	if log == nil {
		log = slog.Default()
	}
	return &RAGService{
		corpora:      corpora,
		orchestrator: orch,
		cache:        rc,
		answerer:     answerer,
		system:       answer.SystemPrompt,
		log:          log,
	}
}

// Corpora lists the configured corpora in order.
func (s *RAGService) Corpora() []domain.NamedCorpus {
	out := make([]domain.NamedCorpus, len(s.corpora))
	for i, c := range s.corpora {
		out[i] = c.NamedCorpus
	}
	return out
}

// Select returns the named corpora in configured order, or all of them
// when names is empty. topK overrides every corpus's top_k when positive.
func (s *RAGService) Select(topK int, names ...string) ([]retrieval.Corpus, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = false
	}
	out := make([]retrieval.Corpus, 0, len(s.corpora))
	for _, c := range s.corpora {
		if len(names) > 0 {
			if _, ok := want[c.Name]; !ok {
				continue
			}
			want[c.Name] = true
		}
		if topK > 0 {
			c.TopK = topK
		}
		out = append(out, c)
	}
	for n, found := range want {
		if !found {
			return nil, domain.Errorf(domain.ErrQuery, "select corpora", n, "unknown corpus")
		}
	}
	return out, nil
}

// Retrieve runs the query over corpora, through the cache when one is set.
func (s *RAGService) Retrieve(ctx context.Context, query string, corpora []retrieval.Corpus) (map[string]domain.Result, bool, error) {
	if s.cache == nil {
		res, err := s.orchestrator.Retrieve(ctx, query, corpora)
		return res, false, err
	}
	named := make([]domain.NamedCorpus, len(corpora))
	for i, c := range corpora {
		named[i] = c.NamedCorpus
	}
	return s.cache.GetOrCompute(ctx, query, named, func() (map[string]domain.Result, error) {
		return s.orchestrator.Retrieve(ctx, query, corpora)
	})
}

// Grounding renders results for corpora as the prompt sections.
func Grounding(corpora []retrieval.Corpus, results map[string]domain.Result) string {
	named := make([]domain.NamedCorpus, len(corpora))
	for i, c := range corpora {
		named[i] = c.NamedCorpus
	}
	return retrieval.FormatGrounding(named, results)
}

// Ask retrieves grounding from every corpus and asks the answer generator.
func (s *RAGService) Ask(ctx context.Context, question string) (Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.Errorf(domain.ErrQuery, "ask", "", "empty question")
	}
	if s.answerer == nil {
		return Answer{}, fmt.Errorf("ask: no answer generator configured")
	}
	if r, ok := s.answerer.(domain.Researcher); ok {
		return s.research(ctx, r, question, start)
	}
	results, cached, err := s.Retrieve(ctx, question, s.corpora)
	if err != nil {
		return Answer{}, err
	}
	grounding := Grounding(s.corpora, results)
	text, err := s.answerer.Answer(ctx, s.system, answer.BuildPrompt(question, grounding))
	if err != nil {
		return Answer{}, fmt.Errorf("answer with %s: %w", s.answerer.Name(), err)
	}
	a := Answer{
		Question:  question,
		Text:      strings.TrimSpace(text),
		Grounding: grounding,
		Results:   results,
		Cached:    cached,
		Duration:  time.Since(start),
	}
	s.log.Info("question answered", "answerer", s.answerer.Name(), "cached", cached, "duration", a.Duration)
	return a, nil
}

// research hands the bare question to an answerer that searches the
// corpora itself; the answer carries no grounding of its own.
func (s *RAGService) research(ctx context.Context, r domain.Researcher, question string, start time.Time) (Answer, error) {
	text, err := r.Research(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("answer with %s: %w", r.Name(), err)
	}
	a := Answer{
		Question: question,
		Text:     strings.TrimSpace(text),
		Duration: time.Since(start),
	}
	s.log.Info("question answered", "answerer", r.Name(), "tools", true, "duration", a.Duration)
	return a, nil
}
