package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"eurorag/internal/domain"
)

// Meta is the optional side file recorded next to a file artifact pair. The
// digests tie it to the exact embeddings and texts files of its build.
type Meta struct {
	Model            string    `json:"model"`
	Dimension        int       `json:"dimension"`
	Count            int       `json:"count"`
	BuiltAt          time.Time `json:"built_at"`
	EmbeddingsDigest string    `json:"embeddings_xxh64,omitempty"`
	TextsDigest      string    `json:"texts_xxh64,omitempty"`
}

func digest(sum uint64) string { return fmt.Sprintf("%016x", sum) }

// FileStore keeps each corpus as <dir>/<artifact>_embeddings.npy,
// <dir>/<artifact>_texts.json and <dir>/<artifact>_meta.json.
type FileStore struct {
	dir       string
	artifacts map[string]string
	log       *slog.Logger
}

// NewFileStore creates a file artifact store rooted at dir. artifacts maps a
// corpus name to its artifact base name; unmapped corpora use their name.
func NewFileStore(dir string, artifacts map[string]string, log *slog.Logger) *FileStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{dir: dir, artifacts: artifacts, log: log}
}

// Paths returns the embeddings, texts and metadata paths for a corpus.
func (s *FileStore) Paths(name string) (embeddings, texts, meta string) {
	base := name
	if a, ok := s.artifacts[name]; ok && a != "" {
		base = a
	}
	return filepath.Join(s.dir, base+"_embeddings.npy"),
		filepath.Join(s.dir, base+"_texts.json"),
		filepath.Join(s.dir, base+"_meta.json")
}

// Save writes all three files to temporaries first and renames them into
// place only once every write succeeded. The metadata file is renamed last,
// so a crash between renames leaves digests that no longer match and Load
// refuses the mixed pair.
func (s *FileStore) Save(ctx context.Context, idx *domain.CorpusIndex) error {
	const op = "save file artifacts"
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.NewError(domain.ErrBuild, op, idx.Name, err)
	}
	embPath, textPath, metaPath := s.Paths(idx.Name)

	var tmps []string
	cleanup := func() {
		for _, t := range tmps {
			_ = os.Remove(t)
		}
	}
	write := func(final string, fill func(io.Writer) error) error {
		f, err := os.CreateTemp(s.dir, filepath.Base(final)+".*.tmp")
		if err != nil {
			return err
		}
		tmps = append(tmps, f.Name())
		if err := fill(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", final, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	embHash, textHash := xxhash.New(), xxhash.New()
	err := write(embPath, func(w io.Writer) error {
		return writeNPY(io.MultiWriter(w, embHash), idx.Vectors(), idx.Dimension)
	})
	if err == nil {
		err = write(textPath, func(w io.Writer) error {
			return encodeJSON(io.MultiWriter(w, textHash), idx.Texts())
		})
	}
	if err == nil {
		err = write(metaPath, func(w io.Writer) error {
			return encodeJSON(w, Meta{
				Model:            idx.Model,
				Dimension:        idx.Dimension,
				Count:            idx.Len(),
				BuiltAt:          idx.BuiltAt,
				EmbeddingsDigest: digest(embHash.Sum64()),
				TextsDigest:      digest(textHash.Sum64()),
			})
		})
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cleanup()
		return domain.NewError(domain.ErrBuild, op, idx.Name, err)
	}

	for i, final := range []string{embPath, textPath, metaPath} {
		if err := os.Rename(tmps[i], final); err != nil {
			cleanup()
			return domain.NewError(domain.ErrBuild, op, idx.Name, err)
		}
	}
	s.log.Debug("artifacts written", "corpus", idx.Name, "embeddings", embPath, "texts", textPath)
	return nil
}

// Load reads a corpus pair back. The metadata file is optional; when
// present its digests, count and dimension must agree with the pair.
func (s *FileStore) Load(ctx context.Context, name string) (*domain.CorpusIndex, error) {
	const op = "load file artifacts"
	if err := ctx.Err(); err != nil {
		return nil, domain.NewError(domain.ErrIndexLoad, op, name, err)
	}
	embPath, textPath, metaPath := s.Paths(name)

	embData, err := os.ReadFile(embPath)
	if err != nil {
		return nil, domain.NewError(domain.ErrIndexLoad, op, name, err)
	}
	vectors, err := readNPY(embData)
	if err != nil {
		return nil, domain.NewError(domain.ErrIndexLoad, op, name, fmt.Errorf("%s: %w", embPath, err))
	}

	textData, err := os.ReadFile(textPath)
	if err != nil {
		return nil, domain.NewError(domain.ErrIndexLoad, op, name, err)
	}
	var texts []string
	if err := json.Unmarshal(textData, &texts); err != nil {
		return nil, domain.NewError(domain.ErrIndexLoad, op, name, fmt.Errorf("%s: %w", textPath, err))
	}

	var meta *Meta
	if data, err := os.ReadFile(metaPath); err == nil {
		meta = &Meta{}
		if err := json.Unmarshal(data, meta); err != nil {
			return nil, domain.NewError(domain.ErrIndexLoad, op, name, fmt.Errorf("%s: %w", metaPath, err))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, domain.NewError(domain.ErrIndexLoad, op, name, err)
	}

	model := ""
	if meta != nil {
		model = meta.Model
	}
	idx, err := domain.NewCorpusIndex(name, model, vectors, texts)
	if err != nil {
		return nil, domain.NewError(domain.ErrIndexLoad, op, name, err)
	}
	if meta != nil {
		if meta.EmbeddingsDigest != "" && meta.EmbeddingsDigest != digest(xxhash.Sum64(embData)) ||
			meta.TextsDigest != "" && meta.TextsDigest != digest(xxhash.Sum64(textData)) {
			return nil, domain.NewError(domain.ErrIndexLoad, op, name,
				fmt.Errorf("%w: artifacts do not belong to the build of %s", domain.ErrMisaligned, meta.BuiltAt.Format(time.RFC3339)))
		}
		if meta.Count != idx.Len() {
			return nil, domain.Errorf(domain.ErrIndexLoad, op, name, "metadata count %d, artifacts hold %d", meta.Count, idx.Len())
		}
		if idx.Len() > 0 && meta.Dimension != idx.Dimension {
			return nil, domain.NewError(domain.ErrIndexLoad, op, name,
				fmt.Errorf("%w: metadata %d, vectors %d", domain.ErrDimensionMismatch, meta.Dimension, idx.Dimension))
		}
		idx.BuiltAt = meta.BuiltAt
		if idx.Dimension == 0 {
			idx.Dimension = meta.Dimension
		}
	}
	return idx, nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
