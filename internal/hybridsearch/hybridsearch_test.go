package hybridsearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	now := time.Now()
	return []Record{
		{ID: 1, Content: "func ReadFile reads bytes from disk", Context: "io.go", CreatedAt: now.Add(-time.Hour), Vector: []float32{1, 0, 0}},
		{ID: 2, Content: "func WriteFile writes bytes to disk", Context: "io.go", CreatedAt: now.Add(-2 * time.Hour), Vector: []float32{0.9, 0.1, 0}},
		{ID: 3, Content: "SELECT * FROM users WHERE id = ?", Context: "queries.sql", CreatedAt: now, Vector: []float32{0, 1, 0}},
	}
}

func fakeEmbed(text string, dim int) []float32 {
	if text == "read file" {
		return []float32{1, 0, 0}
	}
	return []float32{0, 0, 1}
}

func TestBM25IndexScoresExactTermHigher(t *testing.T) {
	docs := []Document{
		{ID: 1, Content: "read file from disk"},
		{ID: 2, Content: "write file to disk"},
	}
	idx := BuildBM25Index(docs)
	scores := idx.Score("read")
	require.Contains(t, scores, int64(1))
	assert.Greater(t, scores[1], scores[2])
}

func TestBM25IndexEmptyQueryReturnsEmpty(t *testing.T) {
	idx := BuildBM25Index([]Document{{ID: 1, Content: "hello"}})
	assert.Empty(t, idx.Score(""))
}

func TestFuseWeightedCombinesBothSignals(t *testing.T) {
	keyword := map[int64]float64{1: 1.0}
	semantic := map[int64]float64{1: 0.5, 2: 0.8}
	fused := Fuse(keyword, semantic, FusionOptions{Method: FusionWeighted, WeightKeyword: 0.5, WeightSemantic: 0.5})
	assert.InDelta(t, 0.75, fused[1], 1e-9)
	assert.InDelta(t, 0.4, fused[2], 1e-9)
}

func TestFuseMaxTakesHigherSignal(t *testing.T) {
	fused := Fuse(map[int64]float64{1: 0.2}, map[int64]float64{1: 0.9}, FusionOptions{Method: FusionMax})
	assert.InDelta(t, 0.9, fused[1], 1e-9)
}

func TestFuseRRFRanksBothSignalsIndependently(t *testing.T) {
	keyword := map[int64]float64{1: 10, 2: 1}
	semantic := map[int64]float64{2: 10, 1: 1}
	fused := Fuse(keyword, semantic, FusionOptions{Method: FusionRRF})
	// both ids rank #1 in one signal and #2 in the other — scores should tie.
	assert.InDelta(t, fused[1], fused[2], 1e-9)
}

func TestQueryHasIdentifierShape(t *testing.T) {
	assert.True(t, QueryHasIdentifierShape(`db.QueryRowContext`))
	assert.True(t, QueryHasIdentifierShape(`"exact phrase"`))
	assert.False(t, QueryHasIdentifierShape("how does caching work"))
}

func TestQueryHasConceptualShape(t *testing.T) {
	assert.True(t, QueryHasConceptualShape("why does this function fail sometimes"))
	assert.False(t, QueryHasConceptualShape("ReadFile"))
}

func TestSearcherBalancedStrategyFusesLexicalAndSemantic(t *testing.T) {
	s := New(sampleRecords(), nil, fakeEmbed, 3)
	results, err := s.Search(context.Background(), "read file", SearchOptions{Strategy: StrategyBalanced, Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestSearcherToleratesMissingVectors(t *testing.T) {
	records := sampleRecords()
	records[0].Vector = nil
	s := New(records, nil, fakeEmbed, 3)
	results, err := s.Search(context.Background(), "read file", SearchOptions{Limit: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearcherAdaptiveRoutesIdentifierQueryKeywordFirst(t *testing.T) {
	s := New(sampleRecords(), nil, fakeEmbed, 3)
	got := s.resolveAdaptive("ReadFile")
	assert.Equal(t, StrategyKeywordFirst, got)
}

func TestSearcherRerankSortsByBlendedScore(t *testing.T) {
	s := New(sampleRecords(), nil, fakeEmbed, 3)
	results, err := s.Search(context.Background(), "read file", SearchOptions{Rerank: true, RerankN: 10, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}
