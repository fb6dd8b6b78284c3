package answer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Extractive answers without a language model: it picks the grounding
// sentences that best cover the question terms and cites the source.
type Extractive struct {
	maxSentences int
	tokenPattern *regexp.Regexp
	sentences    *regexp.Regexp
	stopwords    map[string]struct{}
}

// NoAnswer is returned when no grounding sentence shares a term with the question.
const NoAnswer = "Не открих информация по този въпрос в източниците на Българската народна банка."

var (
	scoreLine = regexp.MustCompile(`^\d+\. \(Score: -?\d+\.\d+\)$`)
	separator = strings.Repeat("-", 40)
)

// NewExtractive creates an extractive answerer returning at most
// maxSentences sentences.
func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return &Extractive{
		maxSentences: maxSentences,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`),
		sentences:    regexp.MustCompile(`[^.!?\n]+[.!?]*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Extractive) Name() string { return "extractive" }

// Answer ignores the system prompt apart from its source citation rule.
func (e *Extractive) Answer(ctx context.Context, _ string, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	query, grounding := ParsePrompt(prompt)
	terms := map[string]struct{}{}
	for _, tok := range e.tokens(query) {
		terms[tok] = struct{}{}
	}
	sentences := e.groundingSentences(grounding)
	if len(terms) == 0 || len(sentences) == 0 {
		return NoAnswer, nil
	}

	// Weight question terms by how rare they are across the grounding.
	df := map[string]float64{}
	for _, sent := range sentences {
		seen := map[string]struct{}{}
		for _, tok := range e.tokens(sent) {
			if _, ok := terms[tok]; !ok {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, 0, len(sentences))
	for i, sent := range sentences {
		toks := e.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			if n, ok := df[tok]; ok {
				sscore += math.Log(1 + float64(len(sentences))/n)
			}
		}
		if sscore == 0 {
			continue
		}
		// Normalize by sentence length to avoid bias
		sscore /= math.Sqrt(float64(len(toks)))
		scores = append(scores, pair{i, sscore})
	}
	if len(scores) == 0 {
		return NoAnswer, nil
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := min(e.maxSentences, len(scores))
	// Keep grounding order among selected
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)

	var b strings.Builder
	for i, idx := range selected {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentences[idx])
	}
	b.WriteString("\n\nИзточник: Българска народна банка, ")
	b.WriteString(SourceURL)
	return b.String(), nil
}

// groundingSentences returns the distinct sentences of every hit, skipping
// section headings, score lines and separators.
func (e *Extractive) groundingSentences(grounding string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(grounding, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == separator || strings.HasPrefix(line, "### ") || scoreLine.MatchString(line) {
			continue
		}
		for _, sent := range e.sentences.FindAllString(line, -1) {
			sent = strings.TrimSpace(sent)
			if sent == "" {
				continue
			}
			if _, dup := seen[sent]; dup {
				continue
			}
			seen[sent] = struct{}{}
			out = append(out, sent)
		}
	}
	return out
}

func (e *Extractive) tokens(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "from", "will", "what", "how", "when", "do", "does",
		"и", "в", "във", "на", "с", "със", "за", "от", "до", "по", "се", "да", "не", "е", "са", "ще", "че", "ли", "как", "какво", "кога", "който", "която", "които", "или", "при", "има", "ми", "ни",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
