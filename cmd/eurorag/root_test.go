package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQA = `Какво е еврото?
Еврото е официалната валута на еврозоната.
Кога България ще въведе еврото?
България въвежда еврото от 1 януари 2026 г.
`

const testLaw = `Закон за Българската народна банка
Чл. 1. Българската народна банка е централната банка на Република България.
1
Закон за Българската народна банка
Чл. 2. Основната цел на Българската народна банка е да поддържа ценова стабилност.
`

// setupWorkspace writes two small corpora and a config using the offline
// embedder, the file backend and the extractive answerer. It returns the
// config path.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	qaPath := filepath.Join(dir, "q_and_a.txt")
	lawPath := filepath.Join(dir, "law.txt")
	require.NoError(t, os.WriteFile(qaPath, []byte(testQA), 0o644))
	require.NoError(t, os.WriteFile(lawPath, []byte(testLaw), 0o644))

	cfg := fmt.Sprintf(`
embedder:
  type: hashing
  dimension: 128
  coalesce: true
index:
  backend: file
  dir: %s
corpora:
  - name: qa
    label: QA
    kind: qa
    source: %s
    artifact: q_and_a
    top_k: 2
  - name: law
    label: Law
    kind: legal
    source: %s
    artifact: bnb_law
    top_k: 1
answer:
  type: extractive
cache:
  type: memory
logging:
  level: error
`, filepath.Join(dir, "embeddings"), qaPath, lawPath)

	path := filepath.Join(dir, "eurorag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd("1.0.0")
	require.NotNil(t, cmd)

	assert.Equal(t, "eurorag", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)
}

func TestRootCmdHasFlags(t *testing.T) {
	cmd := NewRootCmd("1.0.0")

	for _, name := range []string{"config", "log-level", "json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "persistent flag %q", name)
	}
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := NewRootCmd("1.0.0")

	for _, name := range []string{"build", "search", "ask", "chat"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCmdRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: word2vec\n"), 0o644))

	_, err := run(t, path, "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word2vec")
}
