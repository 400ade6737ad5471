package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securamem/smem/internal/health"
	"github.com/securamem/smem/internal/hybridsearch"
	"github.com/securamem/smem/internal/storage"
)

func openTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := Open(context.Background(), Options{Root: t.TempDir(), DevMode: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func TestOpenCreatesCanonicalLayoutAndIsIsolatedPerProject(t *testing.T) {
	c1 := openTestContext(t)
	c2 := openTestContext(t)

	_, err := c1.Storage.StoreMemory(context.Background(), storage.StoreMemoryParams{Content: "only in project one"})
	require.NoError(t, err)

	count1, err := c1.Storage.CountMemoriesSince(context.Background(), "")
	require.NoError(t, err)
	count2, err := c2.Storage.CountMemoriesSince(context.Background(), "")
	require.NoError(t, err)

	assert.EqualValues(t, 1, count1)
	assert.Zero(t, count2, "a second project's Context must not see the first project's memories")
}

func TestLoadPolicyDefaultsWhenNoPolicyFileExists(t *testing.T) {
	c := openTestContext(t)
	broker, err := c.LoadPolicy()
	require.NoError(t, err)
	assert.NotNil(t, broker)
}

func TestSearchFindsStoredMemory(t *testing.T) {
	c := openTestContext(t)
	_, err := c.Storage.StoreMemory(context.Background(), storage.StoreMemoryParams{Content: "the quick brown fox"})
	require.NoError(t, err)

	results, err := c.Search(context.Background(), "quick fox", hybridsearch.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "quick")
}

func TestIndexerWiresEmbeddingAndVectorSink(t *testing.T) {
	c := openTestContext(t)
	orch := c.Indexer()
	assert.NotNil(t, orch.Embed)
	assert.NotNil(t, orch.Vectors)
	assert.Equal(t, c.Storage, orch.Engine)
}

func TestHealthAndGCWrapStorage(t *testing.T) {
	c := openTestContext(t)
	ctx := context.Background()

	_, err := c.Storage.StoreMemory(ctx, storage.StoreMemoryParams{Content: "hello"})
	require.NoError(t, err)

	rollup, err := c.Health(ctx, health.DefaultSinceDays)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rollup.MemoryCount)

	res, err := c.GC(ctx, health.GCOptions{PruneVectors: true})
	require.NoError(t, err)
	assert.Zero(t, res.VectorsPruned)
}
