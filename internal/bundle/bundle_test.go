package bundle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securamem/smem/internal/cryptostore"
	"github.com/securamem/smem/internal/metadata"
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

func seedCodeMemory(t *testing.T, eng *storage.Engine, file string, vec []float32) int64 {
	t.Helper()
	meta, err := metadata.MarshalForStorage(metadata.NewCode(metadata.CodeChunkMeta{
		File: file, Language: "go", LineStart: 1, LineEnd: 5, ContentSha: "abc123",
	}))
	require.NoError(t, err)
	id, err := eng.StoreMemory(context.Background(), storage.StoreMemoryParams{
		Content: "func Foo() {}\n", Context: "general", Type: "code", MetadataJSON: meta,
	})
	require.NoError(t, err)
	if vec != nil {
		require.NoError(t, eng.UpsertVector(context.Background(), id, vec))
	}
	return id
}

func TestExportThenImportRoundTripsCodeMemories(t *testing.T) {
	srcEng := openTestEngine(t)
	seedCodeMemory(t, srcEng, "a.go", []float32{0.1, 0.2, 0.3})
	seedCodeMemory(t, srcEng, "b.go", []float32{0.4, 0.5, 0.6})

	outDir := t.TempDir()
	bundlePath := filepath.Join(outDir, "export")

	res, err := Export(context.Background(), srcEng, ExportOptions{OutPath: bundlePath, Type: TypeCode})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 2, res.Vectors.Count)
	assert.Equal(t, 3, res.Vectors.Dim)

	dstEng := openTestEngine(t)
	imp, err := Import(context.Background(), dstEng, ImportOptions{InPath: bundlePath})
	require.NoError(t, err)
	assert.Equal(t, 2, imp.MemoriesIn)
	assert.Equal(t, 2, imp.VectorsIn)
	assert.False(t, imp.Legacy)
}

func TestExportZipThenImportRoundTrips(t *testing.T) {
	srcEng := openTestEngine(t)
	seedCodeMemory(t, srcEng, "a.go", []float32{1, 2})

	zipPath := filepath.Join(t.TempDir(), "bundle.smemctx")
	_, err := Export(context.Background(), srcEng, ExportOptions{OutPath: zipPath, Type: TypeCode, Zip: true})
	require.NoError(t, err)

	dstEng := openTestEngine(t)
	imp, err := Import(context.Background(), dstEng, ImportOptions{InPath: zipPath})
	require.NoError(t, err)
	assert.Equal(t, 1, imp.MemoriesIn)
}

func TestImportDetectsChecksumMismatch(t *testing.T) {
	srcEng := openTestEngine(t)
	seedCodeMemory(t, srcEng, "a.go", nil)

	bundlePath := filepath.Join(t.TempDir(), "export")
	_, err := Export(context.Background(), srcEng, ExportOptions{OutPath: bundlePath, Type: TypeCode})
	require.NoError(t, err)

	// Tamper with the chunk map after checksums were recorded.
	require.NoError(t, writeChunkMap(bundlePath, []ChunkRow{{ID: 999, File: "tampered.go"}}))

	dstEng := openTestEngine(t)
	_, err = Import(context.Background(), dstEng, ImportOptions{InPath: bundlePath})
	require.Error(t, err)
	var impErr *ImportError
	require.ErrorAs(t, err, &impErr)
	assert.Equal(t, BlockerChecksum, impErr.Blocker)
}

func TestExportSignsWhenRequested(t *testing.T) {
	srcEng := openTestEngine(t)
	seedCodeMemory(t, srcEng, "a.go", nil)

	dir := t.TempDir()
	kr := cryptostore.NewKeyRing(filepath.Join(dir, "active"), filepath.Join(dir, "archive"))

	bundlePath := filepath.Join(dir, "export")
	res, err := Export(context.Background(), srcEng, ExportOptions{OutPath: bundlePath, Type: TypeCode, Sign: true, KeyRing: kr})
	require.NoError(t, err)
	assert.True(t, res.Signed)
	assert.NotEmpty(t, res.KeyID)

	dstEng := openTestEngine(t)
	imp, err := Import(context.Background(), dstEng, ImportOptions{InPath: bundlePath, RequireSigned: true})
	require.NoError(t, err)
	assert.True(t, imp.SignaturePresent)
	assert.True(t, imp.SignedOK)
}

func TestImportRejectsMissingSignatureWhenRequired(t *testing.T) {
	srcEng := openTestEngine(t)
	seedCodeMemory(t, srcEng, "a.go", nil)

	bundlePath := filepath.Join(t.TempDir(), "export")
	_, err := Export(context.Background(), srcEng, ExportOptions{OutPath: bundlePath, Type: TypeCode})
	require.NoError(t, err)

	dstEng := openTestEngine(t)
	_, err = Import(context.Background(), dstEng, ImportOptions{InPath: bundlePath, RequireSigned: true})
	require.Error(t, err)
	var impErr *ImportError
	require.ErrorAs(t, err, &impErr)
	assert.Equal(t, BlockerSignature, impErr.Blocker)
}

func TestImportAllowUnsignedBypassesSignatureGate(t *testing.T) {
	srcEng := openTestEngine(t)
	seedCodeMemory(t, srcEng, "a.go", nil)

	bundlePath := filepath.Join(t.TempDir(), "export")
	_, err := Export(context.Background(), srcEng, ExportOptions{OutPath: bundlePath, Type: TypeCode})
	require.NoError(t, err)

	dstEng := openTestEngine(t)
	_, err = Import(context.Background(), dstEng, ImportOptions{InPath: bundlePath, RequireSigned: true, AllowUnsigned: true})
	require.NoError(t, err)
}

func TestImportFailsClosedOnUnknownSchemaVersion(t *testing.T) {
	srcEng := openTestEngine(t)
	seedCodeMemory(t, srcEng, "a.go", nil)

	bundlePath := filepath.Join(t.TempDir(), "export")
	_, err := Export(context.Background(), srcEng, ExportOptions{OutPath: bundlePath, Type: TypeCode})
	require.NoError(t, err)

	require.NoError(t, writeManifest(bundlePath, Manifest{SchemaVersion: 99, Type: TypeCode}))

	dstEng := openTestEngine(t)
	_, err = Import(context.Background(), dstEng, ImportOptions{InPath: bundlePath})
	require.Error(t, err)
}

func TestExportNotesOnlyBundleRoundTrips(t *testing.T) {
	srcEng := openTestEngine(t)
	_, err := srcEng.StoreMemory(context.Background(), storage.StoreMemoryParams{
		Content: "remember to rotate keys", Context: "ops", Type: "note",
	})
	require.NoError(t, err)

	bundlePath := filepath.Join(t.TempDir(), "export")
	res, err := Export(context.Background(), srcEng, ExportOptions{OutPath: bundlePath, Type: TypeNotes})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 0, res.Vectors.Count)

	dstEng := openTestEngine(t)
	imp, err := Import(context.Background(), dstEng, ImportOptions{InPath: bundlePath})
	require.NoError(t, err)
	assert.Equal(t, 1, imp.MemoriesIn)
}

func TestIsLegacyPathRecognizesAgmctxSuffix(t *testing.T) {
	assert.True(t, isLegacyPath("/tmp/export.agmctx"))
	assert.True(t, isLegacyPath("/tmp/export.agmctx/"))
	assert.False(t, isLegacyPath("/tmp/export.smemctx"))
}
