package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securamem/smem/internal/storage"
)

func TestRunGCPrunesOrphanVectorsDigestsAndVacuums(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	id, err := eng.StoreMemory(ctx, storage.StoreMemoryParams{
		Content: "code chunk", Type: "code",
		MetadataJSON: `{"kind":"code","code":{"file":"a.go","language":"go","lineStart":1,"lineEnd":2,"contentSha":"x"}}`,
	})
	require.NoError(t, err)
	require.NoError(t, eng.UpsertVector(ctx, id, []float32{1, 2}))

	projectRoot := t.TempDir()
	keptFile := filepath.Join(projectRoot, "kept.go")
	require.NoError(t, os.WriteFile(keptFile, []byte("package x"), 0o644))

	require.NoError(t, eng.SetFileDigest(ctx, "kept.go", "deadbeef"))
	require.NoError(t, eng.SetFileDigest(ctx, "gone.go", "cafef00d"))

	res, err := Run(ctx, eng, projectRoot, GCOptions{PruneVectors: true, DropStaleDigests: true, Vacuum: true})
	require.NoError(t, err)

	assert.Zero(t, res.VectorsPruned, "vector is still attached to a live code memory")
	assert.EqualValues(t, 1, res.DigestsDropped, "only gone.go is missing from disk")
	assert.True(t, res.Vacuumed)

	_, ok, err := eng.GetFileDigest(ctx, "gone.go")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = eng.GetFileDigest(ctx, "kept.go")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunGCNoOpsWhenOptionsDisabled(t *testing.T) {
	eng := openTestEngine(t)
	res, err := Run(context.Background(), eng, t.TempDir(), GCOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.VectorsPruned)
	assert.Zero(t, res.DigestsDropped)
	assert.False(t, res.Vacuumed)
}
