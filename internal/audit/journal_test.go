package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendJournalThenReadJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	e1 := JournalEntry{Ts: time.Now(), Cmd: "recall", Args: []string{"foo"}, Receipt: "receipts/a.json"}
	e2 := JournalEntry{Ts: time.Now(), Cmd: "remember", Receipt: "receipts/b.json"}

	require.NoError(t, AppendJournal(path, e1))
	require.NoError(t, AppendJournal(path, e2))

	entries, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "recall", entries[0].Cmd)
	assert.Equal(t, "remember", entries[1].Cmd)
}

func TestReadJournalMissingFileReturnsEmpty(t *testing.T) {
	entries, err := ReadJournal(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClearJournalTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, AppendJournal(path, JournalEntry{Cmd: "recall", Receipt: "r.json"}))

	require.NoError(t, ClearJournal(path))

	entries, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
