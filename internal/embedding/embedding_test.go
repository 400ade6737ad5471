package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedIsDeterministic(t *testing.T) {
	text := "func ParseConfig(path string) (*Config, error) { return nil, nil }"
	a := Embed(text, DefaultDim)
	b := Embed(text, DefaultDim)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i], "vector element %d differs between runs", i)
	}
}

func TestEmbedHasDefaultDimension(t *testing.T) {
	v := Embed("hello world", DefaultDim)
	assert.Len(t, v, DefaultDim)
}

func TestEmbedRespectsCustomDimension(t *testing.T) {
	v := Embed("hello world", 64)
	assert.Len(t, v, 64)
}

func TestEmbedIsUnitNormalized(t *testing.T) {
	v := Embed("the quick brown fox jumps over the lazy dog", DefaultDim)
	mag := Magnitude(v)
	assert.InDelta(t, 1.0, mag, 1e-6)
}

func TestEmbedEmptyStringIsZeroVectorNotError(t *testing.T) {
	v := Embed("", DefaultDim)
	require.Len(t, v, DefaultDim)
	for _, f := range v {
		assert.Equal(t, float32(0), f)
	}
}

func TestEmbedDistinctTextsProduceDistinctVectors(t *testing.T) {
	a := Embed("func readFile(path string) ([]byte, error)", DefaultDim)
	b := Embed("SELECT * FROM users WHERE id = ?", DefaultDim)
	assert.NotEqual(t, a, b)
}

func TestEmbedSimilarTextsAreMoreSimilarThanUnrelated(t *testing.T) {
	a := Embed("func readFile(path string) ([]byte, error)", DefaultDim)
	b := Embed("func writeFile(path string, data []byte) error", DefaultDim)
	c := Embed("SELECT * FROM users WHERE id = ?", DefaultDim)

	simAB := cosine(a, b)
	simAC := cosine(a, c)
	assert.Greater(t, simAB, simAC)
}

func cosine(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (sqrt(magA) * sqrt(magB))
}

func sqrt(f float64) float64 {
	x := f
	for i := 0; i < 50; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}
