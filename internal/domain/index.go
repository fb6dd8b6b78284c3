package domain

import (
	"math"
	"time"
)

// Record is one retrievable unit together with its embedding.
type Record struct {
	Vector []float32
	Text   string
}

// CorpusIndex is the read-only index of one corpus. Records keep the
// order in which the segmenter produced the units.
type CorpusIndex struct {
	Name      string
	Model     string
	Dimension int
	BuiltAt   time.Time
	Records   []Record
}

// NewCorpusIndex pairs vectors[i] with texts[i]. It fails when the two
// sequences differ in length, when vectors disagree on dimension, or when
// a vector has zero norm.
func NewCorpusIndex(name, model string, vectors [][]float32, texts []string) (*CorpusIndex, error) {
	if len(vectors) != len(texts) {
		return nil, Errorf(ErrMisaligned, "new index", name, "%d vectors, %d texts", len(vectors), len(texts))
	}
	idx := &CorpusIndex{
		Name:    name,
		Model:   model,
		Records: make([]Record, len(texts)),
	}
	for i := range texts {
		idx.Records[i] = Record{Vector: vectors[i], Text: texts[i]}
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Validate checks dimension consistency and stored norms and sets
// Dimension from the first record.
func (c *CorpusIndex) Validate() error {
	if len(c.Records) == 0 {
		return nil
	}
	dim := len(c.Records[0].Vector)
	if dim == 0 {
		return Errorf(ErrDimensionMismatch, "validate index", c.Name, "record 0 has an empty vector")
	}
	if c.Dimension != 0 && c.Dimension != dim {
		return Errorf(ErrDimensionMismatch, "validate index", c.Name, "declared %d, vectors have %d", c.Dimension, dim)
	}
	for i, r := range c.Records {
		if len(r.Vector) != dim {
			return Errorf(ErrDimensionMismatch, "validate index", c.Name, "record %d has %d values, want %d", i, len(r.Vector), dim)
		}
		if Norm(r.Vector) == 0 {
			return Errorf(ErrZeroVector, "validate index", c.Name, "record %d", i)
		}
	}
	c.Dimension = dim
	return nil
}

// Len returns the number of units.
func (c *CorpusIndex) Len() int { return len(c.Records) }

// Texts returns the units in index order.
func (c *CorpusIndex) Texts() []string {
	out := make([]string, len(c.Records))
	for i, r := range c.Records {
		out[i] = r.Text
	}
	return out
}

// Vectors returns the embeddings in index order.
func (c *CorpusIndex) Vectors() [][]float32 {
	out := make([][]float32, len(c.Records))
	for i, r := range c.Records {
		out[i] = r.Vector
	}
	return out
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
