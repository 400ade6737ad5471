package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func TestInProcessCosineRanksExactMatchHighest(t *testing.T) {
	c := NewInProcessCosine(nil)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, 1, []float32{1, 0, 0}))
	require.NoError(t, c.Add(ctx, 2, []float32{0, 1, 0}))
	require.NoError(t, c.Add(ctx, 3, []float32{0.9, 0.1, 0}))

	matches, err := c.Query(ctx, []float32{1, 0, 0}, QueryOptions{K: 3})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, int64(1), matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestInProcessCosineDimMismatchRejected(t *testing.T) {
	c := NewInProcessCosine(nil)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, 1, []float32{1, 2, 3}))
	err := c.Add(ctx, 2, []float32{1, 2})
	assert.Error(t, err)
}

func TestInProcessCosineThreshold(t *testing.T) {
	c := NewInProcessCosine(nil)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, 1, []float32{1, 0}))
	require.NoError(t, c.Add(ctx, 2, []float32{-1, 0}))

	matches, err := c.Query(ctx, []float32{1, 0}, QueryOptions{K: 10, Threshold: 0.9})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].ID)
}

func TestSelectFallsBackWhenNativeUnavailable(t *testing.T) {
	ctx := context.Background()
	native := &alwaysFailInit{}
	fallback := NewInProcessCosine(nil)

	idx, backend, err := Select(ctx, BackendAuto, native, fallback)
	require.NoError(t, err)
	assert.Equal(t, BackendInProcessCosine, backend)
	assert.Same(t, fallback, idx.(*InProcessCosine))
}

func TestSelectExplicitNativeFailsClosed(t *testing.T) {
	ctx := context.Background()
	native := &alwaysFailInit{}
	fallback := NewInProcessCosine(nil)

	_, _, err := Select(ctx, BackendNativeANN, native, fallback)
	assert.Error(t, err)
}

// alwaysFailInit is a minimal VectorIndex whose Init always fails, used to
// exercise Select's fallback path without a real sqlite-vec extension.
type alwaysFailInit struct{}

func (a *alwaysFailInit) Init(ctx context.Context) error { return ErrBackendUnavailable }
func (a *alwaysFailInit) Add(ctx context.Context, id int64, vec []float32) error { return nil }
func (a *alwaysFailInit) Remove(ctx context.Context, id int64) error             { return nil }
func (a *alwaysFailInit) Query(ctx context.Context, vec []float32, opts QueryOptions) ([]Match, error) {
	return nil, nil
}
func (a *alwaysFailInit) Stats(ctx context.Context) (Stats, error) { return Stats{}, nil }
func (a *alwaysFailInit) Dimensions() int                          { return 0 }
