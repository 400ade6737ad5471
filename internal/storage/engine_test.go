package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	eng, err := Open(context.Background(), Options{
		PlaintextPath: filepath.Join(dir, "memory.db"),
		EncPath:       filepath.Join(dir, "memory.db.enc"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestStoreMemoryDedupByContentHash(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	id1, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "hello world", Context: "t", Type: "note"})
	require.NoError(t, err)

	id2, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "hello world", Context: "t2", Type: "note"})
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "storing identical content must preserve the original id")

	m, err := eng.GetMemory(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "t2", m.Context, "second store should update the row in place")
	assert.Equal(t, ContentHash("hello world"), m.ContentHash)
}

func TestStoreMemoryRejectsEmptyContent(t *testing.T) {
	eng := openTestEngine(t)
	_, err := eng.StoreMemory(context.Background(), StoreMemoryParams{Content: "   "})
	assert.Error(t, err)
}

func TestSearchMemoriesFindsStoredContent(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "hello world", Context: "t", Type: "note"})
	require.NoError(t, err)

	results, err := eng.SearchMemories(ctx, "hello", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hello world", results[0].Memory.Content)
	assert.Greater(t, results[0].Relevance, 0.0)
}

func TestSearchMemoriesEmptyQueryReturnsNoResults(t *testing.T) {
	eng := openTestEngine(t)
	results, err := eng.SearchMemories(context.Background(), "", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorUpsertDimMismatchRejected(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	id, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "a"})
	require.NoError(t, err)
	require.NoError(t, eng.UpsertVector(ctx, id, make([]float32, 8)))

	id2, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "b"})
	require.NoError(t, err)
	err = eng.UpsertVector(ctx, id2, make([]float32, 4))
	assert.Error(t, err)
}

func TestGetVectorsToleratesMissing(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	id, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "a"})
	require.NoError(t, err)
	require.NoError(t, eng.UpsertVector(ctx, id, []float32{1, 2, 3}))

	got, err := eng.GetVectors(ctx, []int64{id, 99999})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, id)
}

func TestPruneOrphanVectorsNoOrphansAfterDelete(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	id, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "code chunk", Type: "code", MetadataJSON: `{"kind":"code","code":{"file":"a.go","language":"go","lineStart":1,"lineEnd":2,"contentSha":"x"}}`})
	require.NoError(t, err)
	require.NoError(t, eng.UpsertVector(ctx, id, []float32{1, 2}))

	require.NoError(t, eng.DeleteCodeByFile(ctx, "a.go"))

	n, err := eng.PruneOrphanVectors(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "cascade delete should have already removed the vector row")

	all, err := eng.AllVectors(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileDigestCRUD(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.SetFileDigest(ctx, "a.go", "deadbeef"))
	digest, ok, err := eng.GetFileDigest(ctx, "a.go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", digest)

	require.NoError(t, eng.MoveFileDigest(ctx, "a.go", "b.go"))
	_, ok, err = eng.GetFileDigest(ctx, "a.go")
	require.NoError(t, err)
	assert.False(t, ok)

	digest, ok, err = eng.GetFileDigest(ctx, "b.go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", digest)

	count, err := eng.CountFileDigests(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	n, err := eng.ClearFileDigests(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpdateCodeFilePathRewritesMetadata(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreMemory(ctx, StoreMemoryParams{
		Content: "func Foo() {}", Type: "code",
		MetadataJSON: `{"kind":"code","code":{"file":"old.go","language":"go","lineStart":1,"lineEnd":1,"contentSha":"x"}}`,
	})
	require.NoError(t, err)

	n, err := eng.UpdateCodeFilePath(ctx, "old.go", "new.go")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	results, err := eng.SearchMemories(ctx, "Foo", SearchOptions{Type: "code"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Memory.MetadataJSON, `"new.go"`)
}

func TestGetCodeChunkContentsByFileOrdersByLineStart(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreMemory(ctx, StoreMemoryParams{
		Content: "func Bar() {}", Type: "code",
		MetadataJSON: `{"kind":"code","code":{"file":"a.go","language":"go","lineStart":10,"lineEnd":10,"contentSha":"y"}}`,
	})
	require.NoError(t, err)
	_, err = eng.StoreMemory(ctx, StoreMemoryParams{
		Content: "func Foo() {}", Type: "code",
		MetadataJSON: `{"kind":"code","code":{"file":"a.go","language":"go","lineStart":1,"lineEnd":1,"contentSha":"x"}}`,
	})
	require.NoError(t, err)

	contents, err := eng.GetCodeChunkContentsByFile(ctx, "a.go")
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "func Foo() {}", contents[0])
	assert.Equal(t, "func Bar() {}", contents[1])
}

func TestGetCodeChunkContentsByFileEmptyForUnknownFile(t *testing.T) {
	eng := openTestEngine(t)
	contents, err := eng.GetCodeChunkContentsByFile(context.Background(), "missing.go")
	require.NoError(t, err)
	assert.Empty(t, contents)
}

func TestListMemoriesByTypeFiltersAndOrdersByID(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "a note", Type: "note"})
	require.NoError(t, err)
	_, err = eng.StoreMemory(ctx, StoreMemoryParams{
		Content: "func A() {}", Type: "code",
		MetadataJSON: `{"kind":"code","code":{"file":"a.go","language":"go","lineStart":1,"lineEnd":1,"contentSha":"x"}}`,
	})
	require.NoError(t, err)

	code, err := eng.ListMemoriesByType(ctx, "code")
	require.NoError(t, err)
	require.Len(t, code, 1)
	assert.Equal(t, "code", code[0].Type)

	all, err := eng.ListMemoriesByType(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListMemoriesExcludingTypeOmitsMatchingType(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreMemory(ctx, StoreMemoryParams{Content: "a note", Type: "note"})
	require.NoError(t, err)
	_, err = eng.StoreMemory(ctx, StoreMemoryParams{
		Content: "func A() {}", Type: "code",
		MetadataJSON: `{"kind":"code","code":{"file":"a.go","language":"go","lineStart":1,"lineEnd":1,"contentSha":"x"}}`,
	})
	require.NoError(t, err)

	notes, err := eng.ListMemoriesExcludingType(ctx, "code")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "note", notes[0].Type)
}
