package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSources(t *testing.T) {
	s := DefaultSources()
	assert.Len(t, s, 50)
	assert.Equal(t, []string{
		"https://www.cuponation.no/zalando-rabattkoder",
		"https://kickback.no/rabattkode/zalando",
	}, s.URLs("zalando"))
	assert.Equal(t, []string{"https://www.cuponation.no/ikea-rabattkoder"}, s.URLs("ikea"))
	assert.Nil(t, s.URLs("ukjent"))

	// Callers get a copy.
	s["zalando"][0] = "changed"
	assert.Equal(t, "https://www.cuponation.no/zalando-rabattkoder", DefaultSources().URLs("zalando")[0])
}

func TestParseSources(t *testing.T) {
	data := []byte(`
stores:
  zalando:
    - https://www.cuponation.no/zalando-rabattkoder
  tom: []
`)
	s, err := ParseSources(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"zalando"}, s.StoreIDs())
}

func TestParseSources_Invalid(t *testing.T) {
	_, err := ParseSources([]byte("stores: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: parse sources")
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSources(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, s, 50)

	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stores:\n  boozt: [https://kickback.no/rabattkode/boozt]\n"), 0o644))
	s, err = LoadSources(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://kickback.no/rabattkode/boozt"}, s.URLs("boozt"))
}
