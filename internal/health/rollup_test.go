package health

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securamem/smem/internal/audit"
	"github.com/securamem/smem/internal/storage"
)

func openTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	dir := t.TempDir()
	eng, err := storage.Open(context.Background(), storage.Options{
		PlaintextPath: filepath.Join(dir, "memory.db"),
		EncPath:       filepath.Join(dir, "memory.db.enc"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func seedReceipt(t *testing.T, dir string, id string, success bool, durationMs int64) string {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(durationMs) * time.Millisecond)
	r := audit.Receipt{
		Schema:    audit.ReceiptSchema,
		Version:   1,
		ID:        id,
		Command:   "remember",
		Argv:      []string{"remember", "hello"},
		StartTime: start,
		EndTime:   end,
		Success:   success,
	}
	path, err := r.Write(dir)
	require.NoError(t, err)
	return path
}

func TestComputeAggregatesCountsAndLatency(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreMemory(ctx, storage.StoreMemoryParams{Content: "hello world", Type: "note"})
	require.NoError(t, err)

	receiptsDir := t.TempDir()
	journalPath := filepath.Join(t.TempDir(), "journal.jsonl")

	r1 := seedReceipt(t, receiptsDir, "r1", true, 10)
	r2 := seedReceipt(t, receiptsDir, "r2", false, 20)

	now := time.Now().UTC()
	require.NoError(t, audit.AppendJournal(journalPath, audit.JournalEntry{Ts: now, Cmd: "remember", Receipt: r1}))
	require.NoError(t, audit.AppendJournal(journalPath, audit.JournalEntry{Ts: now, Cmd: "remember", Receipt: r2}))

	rollup, err := Compute(ctx, eng, nil, journalPath, DefaultSinceDays)
	require.NoError(t, err)

	assert.EqualValues(t, 1, rollup.MemoryCount)
	assert.Equal(t, 2, rollup.CommandCount)
	assert.Equal(t, 1, rollup.ErrorCount)
	assert.InDelta(t, 50.0, rollup.ErrorRatePercent, 0.01)
	assert.Greater(t, rollup.LatencyP50Ms, 0.0)
}

func TestComputeIgnoresEntriesOutsideWindow(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	receiptsDir := t.TempDir()
	journalPath := filepath.Join(t.TempDir(), "journal.jsonl")

	r1 := seedReceipt(t, receiptsDir, "old", true, 5)
	stale := time.Now().UTC().AddDate(0, 0, -30)
	require.NoError(t, audit.AppendJournal(journalPath, audit.JournalEntry{Ts: stale, Cmd: "remember", Receipt: r1}))

	rollup, err := Compute(ctx, eng, nil, journalPath, DefaultSinceDays)
	require.NoError(t, err)
	assert.Zero(t, rollup.CommandCount)
}

func TestComputeDefaultsSinceDaysWhenNonPositive(t *testing.T) {
	eng := openTestEngine(t)
	rollup, err := Compute(context.Background(), eng, nil, filepath.Join(t.TempDir(), "journal.jsonl"), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSinceDays, rollup.SinceDays)
}
