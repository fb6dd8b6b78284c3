// Package hashing implements a stateless feature-hashing embedder that
// needs no model files or network access.
package hashing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultDimension is used when New is given a non-positive dimension.
const DefaultDimension = 512

// Embedder hashes word unigrams and bigrams into a fixed number of
// buckets with a sign bit, weights them by sublinear term frequency and
// L2-normalizes the result. The same text always maps to the same vector.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a hashing embedder with the given output dimension.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier recorded in index metadata.
func (e *Embedder) Name() string { return fmt.Sprintf("hashing-%d", e.dimension) }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed embedding for the given text. Text without
// any token yields a zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dimension)
	tf := make(map[string]int)
	tokens := e.tokenize(text)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}
	for feature, count := range tf {
		h := xxhash.Sum64String(feature)
		idx := int(h % uint64(e.dimension))
		w := 1 + math.Log(float64(count))
		if h&(1<<63) != 0 {
			w = -w
		}
		vec[idx] += w
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, e.dimension)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch embeds every text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("hashing: empty batch")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("hashing: text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "it", "this", "that", "from",
		"и", "в", "във", "на", "с", "със", "за", "от", "до", "по", "се", "да", "не", "е", "са", "ще", "че", "който", "която", "които", "или", "при", "как", "какво", "ли",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
