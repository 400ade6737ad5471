package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func TestLayoutSubpaths(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(l.Root(), ".securamem", "memory.db"), l.DBPath())
	assert.Equal(t, filepath.Join(l.Root(), ".securamem", "memory.db.enc"), l.DBEncPath())
	assert.Equal(t, filepath.Join(l.Root(), ".securamem", "policy.json"), l.PolicyPath())
	assert.Equal(t, filepath.Join(l.Root(), ".securamem", "keys", "active"), l.ActiveKeyDir())
}

func TestEnsureCanonicalDirs(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, l.EnsureCanonicalDirs())

	for _, d := range []string{l.DataDir(), l.ReceiptsDir(), l.ActiveKeyDir(), l.ArchiveKeyDir()} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestMigrateLegacyDoesNotOverwriteOrDelete(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	legacyPolicy := filepath.Join(l.LegacyDataDir(), "policy.json")
	require.NoError(t, os.MkdirAll(l.LegacyDataDir(), 0o755))
	require.NoError(t, os.WriteFile(legacyPolicy, []byte(`{"legacy":true}`), 0o644))

	require.NoError(t, l.EnsureCanonicalDirs())
	newPolicy := []byte(`{"legacy":false}`)
	require.NoError(t, os.WriteFile(l.PolicyPath(), newPolicy, 0o644))

	copied, err := l.MigrateLegacy()
	require.NoError(t, err)
	assert.Empty(t, copied) // policy.json already exists canonically, not overwritten

	got, err := os.ReadFile(l.PolicyPath())
	require.NoError(t, err)
	assert.Equal(t, newPolicy, got)

	_, err = os.Stat(legacyPolicy)
	assert.NoError(t, err) // legacy file untouched
}

func TestMigrateLegacyCopiesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(l.LegacyDataDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(l.LegacyDataDir(), "journal.jsonl"), []byte("{}\n"), 0o644))

	copied, err := l.MigrateLegacy()
	require.NoError(t, err)
	assert.Contains(t, copied, "journal.jsonl")

	_, err = os.Stat(l.JournalPath())
	assert.NoError(t, err)
}

func TestRedactForReceiptOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	outside := filepath.Join(os.TempDir(), "elsewhere", "secret.txt")
	assert.Equal(t, RedactedOutsideRoot, l.RedactForReceipt(outside))
	assert.Equal(t, RedactedOutsideRoot, l.RedactForReceipt("../../etc/passwd"))

	inside := filepath.Join(l.Root(), "src", "a.go")
	assert.Equal(t, "src/a.go", l.RedactForReceipt(inside))
}
