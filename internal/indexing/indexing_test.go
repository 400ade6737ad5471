package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securamem/smem/internal/storage"
)

func openTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	dir := t.TempDir()
	eng, err := storage.Open(context.Background(), storage.Options{
		PlaintextPath: filepath.Join(dir, "memory.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexCodeStoresChunksForEachFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")
	writeFile(t, root, "util.go", "package main\n\nfunc Bar() int {\n\treturn 2\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	result, err := orch.IndexCode(context.Background(), root, Options{Symbols: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.FileCount)
	assert.GreaterOrEqual(t, result.Saved, 2)
	assert.NotEmpty(t, result.Digest)
}

func TestIndexCodeDiffModeSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	first, err := orch.IndexCode(context.Background(), root, Options{Symbols: true, Diff: true})
	require.NoError(t, err)
	assert.Positive(t, first.Saved)

	second, err := orch.IndexCode(context.Background(), root, Options{Symbols: true, Diff: true})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Saved)
}

func TestReindexSingleFileReplacesChunks(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	_, err := orch.IndexCode(context.Background(), root, Options{Symbols: true})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc Foo() int {\n\treturn 2\n}\n\nfunc Baz() int {\n\treturn 3\n}\n"), 0o644))
	require.NoError(t, orch.ReindexSingleFile(context.Background(), path, Options{Symbols: true}))

	results, err := eng.SearchMemories(context.Background(), "Baz", storage.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestReindexFolderCountsFilesAndReportsNoErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	result, err := orch.ReindexFolder(context.Background(), root, Options{Symbols: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Files)
	assert.Empty(t, result.Errors)
}

type fakeVectorSink struct {
	upserted map[int64][]float32
}

func (f *fakeVectorSink) Upsert(ctx context.Context, id int64, vec []float32) error {
	if f.upserted == nil {
		f.upserted = make(map[int64][]float32)
	}
	f.upserted[id] = vec
	return nil
}

func intPtr(v int) *int { return &v }

func TestIndexCodeRejectsNonPositiveMaxChunkLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	_, err := orch.IndexCode(context.Background(), root, Options{MaxChunkLines: intPtr(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InputInvalid")

	_, err = orch.IndexCode(context.Background(), root, Options{MaxChunkLines: intPtr(-5)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InputInvalid")
}

func TestIndexCodeAcceptsUnsetOrPositiveMaxChunkLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	_, err := orch.IndexCode(context.Background(), root, Options{})
	require.NoError(t, err)

	_, err = orch.IndexCode(context.Background(), root, Options{MaxChunkLines: intPtr(50)})
	require.NoError(t, err)
}

func TestReindexSingleFileRejectsNonPositiveMaxChunkLines(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	err := orch.ReindexSingleFile(context.Background(), path, Options{MaxChunkLines: intPtr(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InputInvalid")
}

func TestReindexFolderRejectsNonPositiveMaxChunkLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	orch := &Orchestrator{Engine: eng}

	_, err := orch.ReindexFolder(context.Background(), root, Options{MaxChunkLines: intPtr(-1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InputInvalid")
}

func TestIndexCodeEmbedsWhenEmbedderConfigured(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Foo() int {\n\treturn 1\n}\n")

	eng := openTestEngine(t)
	sink := &fakeVectorSink{}
	orch := &Orchestrator{
		Engine:  eng,
		Embed:   func(text string, dim int) []float32 { return make([]float32, dim) },
		Dim:     8,
		Vectors: sink,
	}

	_, err := orch.IndexCode(context.Background(), root, Options{Symbols: true})
	require.NoError(t, err)
	assert.NotEmpty(t, sink.upserted)
}
