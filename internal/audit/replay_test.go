package audit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []JournalEntry {
	return []JournalEntry{
		{Cmd: "remember", Receipt: "receipts/a.json"},
		{Cmd: "index-code", Receipt: "receipts/b.json"},
		{Cmd: "journal", Receipt: "receipts/c.json"},
		{Cmd: "recall", Receipt: "receipts/d.json"},
	}
}

func TestSelectExcludesNonReplayableCommands(t *testing.T) {
	selected := Select(sampleEntries(), Selector{})
	for _, e := range selected {
		assert.NotEqual(t, "journal", e.Cmd)
		assert.NotEqual(t, "replay", e.Cmd)
	}
	assert.Len(t, selected, 3)
}

func TestSelectLastNarrowsToTail(t *testing.T) {
	selected := Select(sampleEntries(), Selector{Last: 1})
	require.Len(t, selected, 1)
	assert.Equal(t, "recall", selected[0].Cmd)
}

func TestSelectByIDMatchesReceiptBasename(t *testing.T) {
	selected := Select(sampleEntries(), Selector{ID: "b"})
	require.Len(t, selected, 1)
	assert.Equal(t, "index-code", selected[0].Cmd)
}

func TestSelectByIDNoMatchReturnsEmpty(t *testing.T) {
	selected := Select(sampleEntries(), Selector{ID: "does-not-exist"})
	assert.Empty(t, selected)
}

func TestBuildPlanDefaultsToDryRun(t *testing.T) {
	plan := BuildPlan(sampleEntries(), Selector{}, false)
	assert.True(t, plan.DryRun)
}

func TestBuildPlanExecuteDisablesDryRun(t *testing.T) {
	plan := BuildPlan(sampleEntries(), Selector{}, true)
	assert.False(t, plan.DryRun)
}

func TestDigestBatchIsDeterministic(t *testing.T) {
	entries := sampleEntries()
	assert.Equal(t, DigestBatch(entries), DigestBatch(entries))
}

type recordingExecutor struct {
	calls []string
	err   error
}

func (r *recordingExecutor) Execute(entry JournalEntry, dryRun bool) error {
	r.calls = append(r.calls, fmt.Sprintf("%s:%v", entry.Cmd, dryRun))
	return r.err
}

func TestPlanRunInvokesExecutorForEachEntry(t *testing.T) {
	plan := BuildPlan(sampleEntries(), Selector{}, false)
	exec := &recordingExecutor{}
	require.NoError(t, plan.Run(exec))
	assert.Len(t, exec.calls, len(plan.Entries))
}

func TestPlanRunStopsAtFirstError(t *testing.T) {
	plan := BuildPlan(sampleEntries(), Selector{}, false)
	exec := &recordingExecutor{err: assert.AnError}
	err := plan.Run(exec)
	assert.Error(t, err)
	assert.Len(t, exec.calls, 1)
}
