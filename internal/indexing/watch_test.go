package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleChangeSkipsUnchangedDigest(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	_, err := orch.IndexCode(context.Background(), root, Options{Symbols: true})
	require.NoError(t, err)

	before, err := eng.CountMemoriesSince(context.Background(), "1970-01-01T00:00:00Z")
	require.NoError(t, err)

	var mu sync.Mutex
	orch.handleChange(context.Background(), root, path, WatchOptions{Options: Options{Symbols: true}}, map[string]pendingDelete{}, map[string]string{}, &mu)

	after, err := eng.CountMemoriesSince(context.Background(), "1970-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHandleChangeTreatsSameDigestAsRename(t *testing.T) {
	root := t.TempDir()
	oldPath := writeFile(t, root, "old.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}
	_, err := orch.IndexCode(context.Background(), root, Options{Symbols: true})
	require.NoError(t, err)

	digest, ok, err := eng.GetFileDigest(context.Background(), "old.go")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, os.Remove(oldPath))
	newPath := filepath.Join(root, "new.go")
	require.NoError(t, os.WriteFile(newPath, []byte("package main\n\nfunc Foo() int {\n\treturn 1\n}\n"), 0o644))

	deleted := map[string]pendingDelete{"old.go": {digest: digest, at: time.Now()}}
	var mu sync.Mutex
	orch.handleChange(context.Background(), root, newPath, WatchOptions{Options: Options{Symbols: true}}, deleted, map[string]string{}, &mu)

	_, stillThere, err := eng.GetFileDigest(context.Background(), "old.go")
	require.NoError(t, err)
	assert.False(t, stillThere)

	_, nowThere, err := eng.GetFileDigest(context.Background(), "new.go")
	require.NoError(t, err)
	assert.True(t, nowThere)
}

func TestHandleChangeTracksContentForDiffSummary(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}
	_, err := orch.IndexCode(context.Background(), root, Options{Symbols: true})
	require.NoError(t, err)

	lastContent := map[string]string{"main.go": "package main\n\nfunc Foo() int {\n\treturn 1\n}\n"}
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc Foo() int {\n\treturn 2\n}\n"), 0o644))

	var mu sync.Mutex
	orch.handleChange(context.Background(), root, path, WatchOptions{Options: Options{Symbols: true}}, map[string]pendingDelete{}, lastContent, &mu)

	assert.Equal(t, "package main\n\nfunc Foo() int {\n\treturn 2\n}\n", lastContent["main.go"])
}
