package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eurorag/internal/domain"
)

func setupBuiltWorkspace(t *testing.T) string {
	t.Helper()
	cfgPath := setupWorkspace(t)
	_, err := run(t, cfgPath, "build")
	require.NoError(t, err)
	return cfgPath
}

func TestSearchCmdSingleCorpus(t *testing.T) {
	cfgPath := setupBuiltWorkspace(t)

	out, err := run(t, cfgPath, "search", "Кога България ще въведе еврото?", "--corpus", "qa", "--top-k", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "1. (Score: ")
	assert.Contains(t, out, "България въвежда еврото от 1 януари 2026 г.")
	assert.NotContains(t, out, "2. (Score: ")
	assert.NotContains(t, out, "### QA:")
}

func TestSearchCmdAllCorporaGrounding(t *testing.T) {
	cfgPath := setupBuiltWorkspace(t)

	out, err := run(t, cfgPath, "search", "централната банка")
	require.NoError(t, err)

	assert.Contains(t, out, "### QA:\n1. (Score: ")
	assert.Contains(t, out, "### Law:\n1. (Score: ")
	assert.Less(t, strings.Index(out, "### QA:"), strings.Index(out, "### Law:"))
}

func TestSearchCmdJSON(t *testing.T) {
	cfgPath := setupBuiltWorkspace(t)

	out, err := run(t, cfgPath, "search", "еврото", "--json")
	require.NoError(t, err)

	var results []domain.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "qa", results[0].Corpus)
	assert.Len(t, results[0].Hits, 2)
	assert.Equal(t, "law", results[1].Corpus)
	assert.Len(t, results[1].Hits, 1)
	assert.GreaterOrEqual(t, results[0].Hits[0].Score, results[0].Hits[1].Score)
}

func TestSearchCmdTopKLargerThanCorpus(t *testing.T) {
	cfgPath := setupBuiltWorkspace(t)

	out, err := run(t, cfgPath, "search", "еврото", "--corpus", "law", "--top-k", "50", "--json")
	require.NoError(t, err)

	var results []domain.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Len(t, results[0].Hits, 2)
}

func TestSearchCmdErrors(t *testing.T) {
	cfgPath := setupWorkspace(t)

	_, err := run(t, cfgPath, "search", "еврото")
	assert.ErrorIs(t, err, domain.ErrIndexLoad, "search before build")

	_, err = run(t, cfgPath, "search", "еврото", "--corpus", "faq")
	assert.ErrorIs(t, err, domain.ErrQuery)

	_, err = run(t, cfgPath, "search", "еврото", "--top-k", "0")
	assert.ErrorIs(t, err, domain.ErrQuery)

	_, err = run(t, cfgPath, "search")
	assert.Error(t, err)
}
