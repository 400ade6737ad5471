package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "policy.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().AllowedGlobs, doc.AllowedGlobs)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "policy.json")
	doc := Default()
	doc.AllowCommand("prove-offline")
	doc.AllowPath("/tmp/out/**")
	require.NoError(t, Save(path, doc))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc.AllowedCommands, loaded.AllowedCommands)
	assert.Contains(t, loaded.AllowedGlobs, "/tmp/out/**")
}

func TestLoadRejectsBlankGlobEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"allowedGlobs":["src/**",""]}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InputInvalid")
}

func TestAllowCommandIsIdempotent(t *testing.T) {
	doc := Document{}
	doc.AllowCommand("recall")
	doc.AllowCommand("recall")
	assert.Equal(t, []string{"recall"}, doc.AllowedCommands)
}

func TestTrustTokenExpiry(t *testing.T) {
	now := time.Now()
	tok := NewTrustToken("import-context", time.Minute, now)
	assert.False(t, tok.Expired(now))
	assert.True(t, tok.Expired(now.Add(2*time.Minute)))
}

func TestLoadTrustTokensMissingFileReturnsEmpty(t *testing.T) {
	tokens, err := LoadTrustTokens(filepath.Join(t.TempDir(), "trust-tokens.json"))
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestSaveThenLoadTrustTokensRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust-tokens.json")
	now := time.Now()
	tokens := []TrustToken{NewTrustToken("import-context", time.Hour, now)}
	require.NoError(t, SaveTrustTokens(path, tokens))

	loaded, err := LoadTrustTokens(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "import-context", loaded[0].Command)
}
