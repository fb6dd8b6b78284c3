package index

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eurorag/internal/config"
	"eurorag/internal/domain"
	"eurorag/internal/logger"
)

func sampleIndex(t *testing.T) *domain.CorpusIndex {
	t.Helper()
	idx, err := domain.NewCorpusIndex("qa", "test-model",
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0.25}},
		[]string{"Ще поскъпне ли хлябът?\nНе.", "Кога?\n2026 г.", "Чл. 1. Текст"})
	require.NoError(t, err)
	idx.BuiltAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return idx
}

func TestNPYRoundTrip(t *testing.T) {
	rows := [][]float32{{1, -2.5, 3}, {0.125, 0, -1}}
	var buf bytes.Buffer
	require.NoError(t, writeNPY(&buf, rows, 3))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x93NUMPY")))

	got, err := readNPY(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	assert.Error(t, writeNPY(&buf, nil, 3))
	assert.Error(t, writeNPY(&buf, [][]float32{{1, 2}}, 3))
}

// numpyFile lays out a version 1.0 .npy file the way numpy.save does.
func numpyFile(t *testing.T, descr string, fortran bool, shape string, payload []byte) []byte {
	t.Helper()
	order := "False"
	if fortran {
		order = "True"
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': %s, }", descr, order, shape)
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	buf.Write(payload)
	return buf.Bytes()
}

func littleEndian(t *testing.T, values any) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, values))
	return buf.Bytes()
}

func TestNPYReadsNumpyArrays(t *testing.T) {
	f4 := numpyFile(t, "<f4", false, "(2, 2)", littleEndian(t, []float32{0.5, 1, 2, -4}))
	got, err := readNPY(f4)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 1}, {2, -4}}, got)

	f8 := numpyFile(t, "<f8", false, "(1, 3)", littleEndian(t, []float64{0.25, -1, math.MaxFloat32}))
	got, err = readNPY(f8)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.25, -1, math.MaxFloat32}}, got)
}

func TestNPYRejectsBadInput(t *testing.T) {
	cases := map[string][]byte{
		"not numpy":     []byte("not numpy at all"),
		"fortran order": numpyFile(t, "<f4", true, "(1, 2)", littleEndian(t, []float32{1, 2})),
		"one dimension": numpyFile(t, "<f4", false, "(2,)", littleEndian(t, []float32{1, 2})),
		"integer dtype": numpyFile(t, "<i4", false, "(1, 2)", littleEndian(t, []int32{1, 2})),
		"truncated":     numpyFile(t, "<f4", false, "(2, 2)", littleEndian(t, []float32{1, 2, 3})),
		"huge shape":    numpyFile(t, "<f4", false, "(4611686018427387904, 4)", littleEndian(t, []float32{1, 2, 3, 4})),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			assert.NotPanics(t, func() {
				_, err = readNPY(data)
			})
			assert.Error(t, err)
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, map[string]string{"qa": "q_and_a"}, logger.Discard())
	idx := sampleIndex(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, idx))
	for _, name := range []string{"q_and_a_embeddings.npy", "q_and_a_texts.json", "q_and_a_meta.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	raw, err := os.ReadFile(filepath.Join(dir, "q_and_a_texts.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Ще поскъпне ли хлябът?")
	assert.True(t, strings.HasPrefix(string(raw), "[\n  \""))

	loaded, err := store.Load(ctx, "qa")
	require.NoError(t, err)
	assert.Equal(t, idx.Records, loaded.Records)
	assert.Equal(t, 3, loaded.Dimension)
	assert.Equal(t, "test-model", loaded.Model)
	assert.True(t, idx.BuiltAt.Equal(loaded.BuiltAt))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFileStoreLoadWithoutMeta(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil, logger.Discard())
	idx := sampleIndex(t)
	require.NoError(t, store.Save(context.Background(), idx))
	_, _, metaPath := store.Paths("qa")
	require.NoError(t, os.Remove(metaPath))

	loaded, err := store.Load(context.Background(), "qa")
	require.NoError(t, err)
	assert.Equal(t, idx.Texts(), loaded.Texts())
	assert.Empty(t, loaded.Model)
}

func TestFileStoreLoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		_, err := NewFileStore(t.TempDir(), nil, logger.Discard()).Load(ctx, "law")
		assert.ErrorIs(t, err, domain.ErrIndexLoad)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("length disagreement", func(t *testing.T) {
		store := NewFileStore(t.TempDir(), nil, logger.Discard())
		require.NoError(t, store.Save(ctx, sampleIndex(t)))
		_, textPath, _ := store.Paths("qa")
		data, _ := json.Marshal([]string{"only one"})
		require.NoError(t, os.WriteFile(textPath, data, 0o644))

		_, err := store.Load(ctx, "qa")
		assert.ErrorIs(t, err, domain.ErrIndexLoad)
		assert.ErrorIs(t, err, domain.ErrMisaligned)
	})

	t.Run("files from different builds", func(t *testing.T) {
		store := NewFileStore(t.TempDir(), nil, logger.Discard())
		require.NoError(t, store.Save(ctx, sampleIndex(t)))
		embPath, _, _ := store.Paths("qa")
		older, err := os.ReadFile(embPath)
		require.NoError(t, err)

		rebuilt := sampleIndex(t)
		rebuilt.Records[0].Vector = []float32{0, 0, 1}
		require.NoError(t, store.Save(ctx, rebuilt))
		require.NoError(t, os.WriteFile(embPath, older, 0o644))

		_, err = store.Load(ctx, "qa")
		assert.ErrorIs(t, err, domain.ErrIndexLoad)
		assert.ErrorIs(t, err, domain.ErrMisaligned)
	})

	t.Run("corrupt embeddings shape", func(t *testing.T) {
		store := NewFileStore(t.TempDir(), nil, logger.Discard())
		require.NoError(t, store.Save(ctx, sampleIndex(t)))
		embPath, _, metaPath := store.Paths("qa")
		require.NoError(t, os.Remove(metaPath))
		data := numpyFile(t, "<f4", false, "(4611686018427387904, 3)", littleEndian(t, []float32{1, 2, 3}))
		require.NoError(t, os.WriteFile(embPath, data, 0o644))

		_, err := store.Load(ctx, "qa")
		assert.ErrorIs(t, err, domain.ErrIndexLoad)
	})

	t.Run("metadata mismatch", func(t *testing.T) {
		store := NewFileStore(t.TempDir(), nil, logger.Discard())
		require.NoError(t, store.Save(ctx, sampleIndex(t)))
		_, _, metaPath := store.Paths("qa")
		data, _ := json.Marshal(Meta{Model: "m", Dimension: 7, Count: 3})
		require.NoError(t, os.WriteFile(metaPath, data, 0o644))

		_, err := store.Load(ctx, "qa")
		assert.ErrorIs(t, err, domain.ErrIndexLoad)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})
}

func TestSQLiteStoreRoundTripAndReplace(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "eurorag.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	idx := sampleIndex(t)
	require.NoError(t, store.Save(ctx, idx))
	loaded, err := store.Load(ctx, "qa")
	require.NoError(t, err)
	assert.Equal(t, idx.Records, loaded.Records)
	assert.Equal(t, "test-model", loaded.Model)
	assert.True(t, idx.BuiltAt.Equal(loaded.BuiltAt))

	smaller, err := domain.NewCorpusIndex("qa", "other", [][]float32{{0, 0, 1}}, []string{"replaced"})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, smaller))
	loaded, err = store.Load(ctx, "qa")
	require.NoError(t, err)
	assert.Equal(t, []string{"replaced"}, loaded.Texts())
	assert.Equal(t, "other", loaded.Model)

	_, err = store.Load(ctx, "law")
	assert.ErrorIs(t, err, domain.ErrIndexLoad)
}

func TestEmbeddingBlob(t *testing.T) {
	v := []float32{1.5, -2, 0}
	got, err := decodeEmbedding(encodeEmbedding(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

type stubEmbedder struct {
	dim     int
	vectors func(texts []string) [][]float32
	err     error
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return s.dim }
func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors(texts), nil
}

func byLength(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out
}

type lineSegmenter struct{}

func (lineSegmenter) Segment(doc domain.Document) ([]string, error) {
	var out []string
	for _, l := range strings.Split(doc.Text(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

type recordingStore struct {
	saved []*domain.CorpusIndex
}

func (r *recordingStore) Save(_ context.Context, idx *domain.CorpusIndex) error {
	r.saved = append(r.saved, idx)
	return nil
}

func (r *recordingStore) Load(context.Context, string) (*domain.CorpusIndex, error) {
	return nil, errors.New("not implemented")
}

func TestBuilderAlignsUnitsAndVectors(t *testing.T) {
	store := &recordingStore{}
	b := NewBuilder(&stubEmbedder{dim: 2, vectors: byLength}, store, logger.Discard(), nil)
	doc := domain.Document{Path: "x.txt", Pages: []string{"alpha\nbe", "gamma ray"}}

	idx, err := b.Build(context.Background(), "qa", doc, lineSegmenter{})
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, []string{"alpha", "be", "gamma ray"}, idx.Texts())
	for i, r := range idx.Records {
		assert.Equal(t, float32(len(r.Text)), r.Vector[0], "record %d", i)
	}
	assert.Equal(t, "stub", idx.Model)
	assert.False(t, idx.BuiltAt.IsZero())
}

func TestBuilderFailuresDoNotSave(t *testing.T) {
	doc := domain.Document{Path: "x.txt", Pages: []string{"one\ntwo"}}
	cases := []struct {
		name string
		emb  *stubEmbedder
		doc  domain.Document
		kind error
		also error
	}{
		{name: "no units", emb: &stubEmbedder{vectors: byLength}, doc: domain.Document{Path: "empty.txt"}, kind: domain.ErrBuild},
		{name: "embedder error", emb: &stubEmbedder{err: errors.New("backend down")}, doc: doc, kind: domain.ErrEmbedding},
		{
			name: "too few vectors",
			emb:  &stubEmbedder{vectors: func([]string) [][]float32 { return [][]float32{{1}} }},
			doc:  doc, kind: domain.ErrEmbedding, also: domain.ErrMisaligned,
		},
		{
			name: "mixed dimensions",
			emb:  &stubEmbedder{vectors: func([]string) [][]float32 { return [][]float32{{1}, {1, 2}} }},
			doc:  doc, kind: domain.ErrEmbedding, also: domain.ErrDimensionMismatch,
		},
		{
			name: "zero vector",
			emb:  &stubEmbedder{vectors: func([]string) [][]float32 { return [][]float32{{1, 0}, {0, 0}} }},
			doc:  doc, kind: domain.ErrEmbedding, also: domain.ErrZeroVector,
		},
		{
			name: "reported dimension disagrees",
			emb:  &stubEmbedder{dim: 5, vectors: byLength},
			doc:  doc, kind: domain.ErrEmbedding, also: domain.ErrDimensionMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &recordingStore{}
			_, err := NewBuilder(tc.emb, store, logger.Discard(), nil).Build(context.Background(), "qa", tc.doc, lineSegmenter{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			if tc.also != nil {
				assert.ErrorIs(t, err, tc.also)
			}
			assert.Empty(t, store.saved)
		})
	}
}

func TestFailedRebuildKeepsPriorArtifacts(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil, logger.Discard())
	ctx := context.Background()
	doc := domain.Document{Path: "x.txt", Pages: []string{"first unit\nsecond unit"}}

	_, err := NewBuilder(&stubEmbedder{vectors: byLength}, store, logger.Discard(), nil).Build(ctx, "qa", doc, lineSegmenter{})
	require.NoError(t, err)
	embPath, textPath, _ := store.Paths("qa")
	beforeEmb, _ := os.ReadFile(embPath)
	beforeText, _ := os.ReadFile(textPath)

	_, err = NewBuilder(&stubEmbedder{err: errors.New("quota")}, store, logger.Discard(), nil).Build(ctx, "qa", doc, lineSegmenter{})
	require.Error(t, err)

	afterEmb, _ := os.ReadFile(embPath)
	afterText, _ := os.ReadFile(textPath)
	assert.Equal(t, beforeEmb, afterEmb)
	assert.Equal(t, beforeText, afterText)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	st, closer, err := NewStore(config.IndexConfig{Backend: "file", Dir: dir},
		[]config.CorpusConfig{{Name: "law", Artifact: "bnb_law"}}, logger.Discard())
	require.NoError(t, err)
	defer closer.Close()
	fs, ok := st.(*FileStore)
	require.True(t, ok)
	emb, _, _ := fs.Paths("law")
	assert.Equal(t, filepath.Join(dir, "bnb_law_embeddings.npy"), emb)

	st, closer, err = NewStore(config.IndexConfig{Backend: "sqlite", SQLite: &config.SQLiteConfig{Path: filepath.Join(dir, "x.db")}}, nil, nil)
	require.NoError(t, err)
	_, ok = st.(*SQLiteStore)
	assert.True(t, ok)
	require.NoError(t, closer.Close())

	_, _, err = NewStore(config.IndexConfig{Backend: "faiss"}, nil, nil)
	assert.Error(t, err)
}
