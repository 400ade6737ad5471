package hybridsearch

import (
	"context"
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func openTestBadger(t *testing.T) *dgbadger.DB {
	t.Helper()
	opts := dgbadger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerResultCacheMissOnEmptyDB(t *testing.T) {
	db := openTestBadger(t)
	cache := NewBadgerResultCache(db, time.Minute, nil)

	results, err := cache.Load(context.Background(), "hello", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestBadgerResultCacheRoundTrip(t *testing.T) {
	db := openTestBadger(t)
	cache := NewBadgerResultCache(db, time.Minute, nil)

	want := []Result{{ID: 1, Content: "hello", Score: 0.9}}
	require.NoError(t, cache.Save(context.Background(), "hello", SearchOptions{Limit: 5}, want))

	got, err := cache.Load(context.Background(), "hello", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.Equal(t, want[0].Content, got[0].Content)
}

func TestBadgerResultCacheDifferentOptionsMiss(t *testing.T) {
	db := openTestBadger(t)
	cache := NewBadgerResultCache(db, time.Minute, nil)

	require.NoError(t, cache.Save(context.Background(), "hello", SearchOptions{Limit: 5}, []Result{{ID: 1}}))

	got, err := cache.Load(context.Background(), "hello", SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c NoopCache
	got, err := c.Load(context.Background(), "x", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)
}
