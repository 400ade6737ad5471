package indexing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedDiffReportsAddedLine(t *testing.T) {
	out, err := unifiedDiff("main.go", "package main\n\nfunc Foo() {}\n", "package main\n\nfunc Foo() {}\n\nfunc Bar() {}\n")
	require.NoError(t, err)
	assert.Contains(t, out, "+func Bar() {}")
	assert.Contains(t, out, "a/main.go")
	assert.Contains(t, out, "b/main.go")
}

func TestUnifiedDiffReportsRemovedLine(t *testing.T) {
	out, err := unifiedDiff("main.go", "package main\n\nfunc Foo() {}\nfunc Bar() {}\n", "package main\n\nfunc Foo() {}\n")
	require.NoError(t, err)
	assert.Contains(t, out, "-func Bar() {}")
}

func TestUnifiedDiffNoChangesProducesEmptySummary(t *testing.T) {
	out, err := unifiedDiff("main.go", "same\n", "same\n")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDiffOpsHandlesEmptyInputs(t *testing.T) {
	assert.Empty(t, diffOps(nil, nil))
	ops := diffOps(nil, []string{"a", "b"})
	require.Len(t, ops, 2)
	assert.Equal(t, opInsert, ops[0].kind)
}

func TestHunksFromLCSSingleHunkCoversWholeDiff(t *testing.T) {
	hunks := hunksFromLCS([]string{"a", "b"}, []string{"a", "c"})
	require.Len(t, hunks, 1)
	body := string(hunks[0].Body)
	assert.True(t, strings.Contains(body, "-b") && strings.Contains(body, "+c"))
}
