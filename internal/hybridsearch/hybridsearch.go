// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hybridsearch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/securamem/smem/internal/telemetry"
	"github.com/securamem/smem/internal/vectorindex"
)

// searchTracer is the shared otel tracer for Search spans.
var searchTracer = telemetry.Tracer()

// Strategy names a routing choice for combining lexical and semantic search.
type Strategy string

const (
	StrategyAdaptive      Strategy = "adaptive"
	StrategyKeywordFirst  Strategy = "keyword-first"
	StrategySemanticFirst Strategy = "semantic-first"
	StrategyBalanced      Strategy = "balanced"
)

// DefaultRerankN is the number of top FTS candidates considered in rerank
// mode (spec §4.7).
const DefaultRerankN = 200

// Record is one memory as seen by Hybrid Search: everything it needs to
// score and to return in a Result.
type Record struct {
	ID        int64
	Content   string
	Context   string
	Type      string
	Tags      []string
	CreatedAt time.Time
	Vector    []float32 // nil if not yet embedded
}

// Result is a single fused search hit.
type Result struct {
	ID            int64
	Content       string
	Context       string
	Type          string
	Tags          []string
	Timestamp     time.Time
	Score         float64
	KeywordScore  float64
	SemanticScore float64
	Strategy      Strategy
}

// SearchOptions configures a Search call.
type SearchOptions struct {
	Strategy Strategy
	Fusion   FusionOptions
	Limit    int
	RerankN  int  // default DefaultRerankN, used only by rerank mode
	Rerank   bool // if true, use the top-RerankN-FTS-candidates rerank path
}

// Searcher fuses lexical and semantic scores over an in-memory corpus
// snapshot. Callers rebuild or refresh the snapshot as memories change;
// Searcher itself does no I/O.
type Searcher struct {
	bm25    *BM25Index
	records map[int64]Record
	vectors vectorindex.VectorIndex
	embed   func(text string, dim int) []float32
	dim     int
}

// New builds a Searcher over records. vectors may be nil, in which case
// every semantic score is 0 (spec §4.7's tolerate-missing-vectors
// requirement, generalized to "no vector backend at all").
func New(records []Record, vectors vectorindex.VectorIndex, embed func(text string, dim int) []float32, dim int) *Searcher {
	docs := make([]Document, 0, len(records))
	byID := make(map[int64]Record, len(records))
	for _, r := range records {
		docs = append(docs, Document{ID: r.ID, Content: r.Content, Context: r.Context, Tags: r.Tags})
		byID[r.ID] = r
	}
	return &Searcher{
		bm25:    BuildBM25Index(docs),
		records: byID,
		vectors: vectors,
		embed:   embed,
		dim:     dim,
	}
}

// Search runs query under opts.Strategy (or the adaptive decision for
// StrategyAdaptive/empty) and returns fused, ranked Results.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) (results []Result, err error) {
	ctx, span := searchTracer.Start(ctx, "hybridsearch.Search",
		trace.WithAttributes(
			attribute.String("search.strategy", string(opts.Strategy)),
			attribute.Bool("search.rerank", opts.Rerank),
			attribute.Int("search.limit", opts.Limit),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("search.results", len(results)))
		}
		span.End()
	}()

	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	strategy := opts.Strategy
	if strategy == "" || strategy == StrategyAdaptive {
		strategy = s.resolveAdaptive(query)
	}

	if opts.Rerank {
		return s.searchRerank(ctx, query, opts)
	}

	keywordScores := s.bm25.Score(query)
	semanticScores, err := s.semanticScores(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	// keyword-first/semantic-first bias the fusion weights toward the
	// signal that runs first; Fuse already unions ids from both maps, so a
	// memory with no FTS hit still surfaces via its semantic score and vice
	// versa (spec §4.7's "backfill" requirement).
	fusionOpts := opts.Fusion
	switch strategy {
	case StrategyKeywordFirst:
		fusionOpts = biasedFusion(fusionOpts, 0.7, 0.3)
	case StrategySemanticFirst:
		fusionOpts = biasedFusion(fusionOpts, 0.3, 0.7)
	}

	fused := Fuse(keywordScores, semanticScores, fusionOpts)
	return s.materialize(fused, keywordScores, semanticScores, strategy, opts.Limit), nil
}

// searchRerank implements the spec §4.7 rerank mode: take the top RerankN
// FTS candidates, score each against the query vector, and sort by
// 0.5*BM25-normalized + 0.5*cosine.
func (s *Searcher) searchRerank(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	n := opts.RerankN
	if n <= 0 {
		n = DefaultRerankN
	}

	keywordScores := s.bm25.Score(query)
	candidateIDs := topN(keywordScores, n)

	var queryVec []float32
	if s.embed != nil {
		queryVec = s.embed(query, s.dim)
	}

	var results []Result
	for _, id := range candidateIDs {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		semantic := cosineToUnit(queryVec, rec.Vector)
		score := 0.5*keywordScores[id] + 0.5*semantic
		results = append(results, s.toResult(rec, score, keywordScores[id], semantic, StrategyBalanced))
	}
	sortResults(results)
	if len(results) > opts.Limit && opts.Limit > 0 {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *Searcher) semanticScores(ctx context.Context, query string, opts SearchOptions) (map[int64]float64, error) {
	if s.vectors == nil || s.embed == nil {
		return map[int64]float64{}, nil
	}
	queryVec := s.embed(query, s.dim)
	matches, err := s.vectors.Query(ctx, queryVec, vectorindex.QueryOptions{K: max(opts.Limit*4, 50)})
	if err != nil {
		return nil, fmt.Errorf("hybridsearch: semantic query: %w", err)
	}
	out := make(map[int64]float64, len(matches))
	for _, m := range matches {
		out[m.ID] = m.Score
	}
	return out, nil
}

func (s *Searcher) materialize(fused, keyword, semantic map[int64]float64, strategy Strategy, limit int) []Result {
	results := make([]Result, 0, len(fused))
	for id, score := range fused {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		results = append(results, s.toResult(rec, score, keyword[id], semantic[id], strategy))
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (s *Searcher) toResult(rec Record, score, keyword, semantic float64, strategy Strategy) Result {
	return Result{
		ID:            rec.ID,
		Content:       rec.Content,
		Context:       rec.Context,
		Type:          rec.Type,
		Tags:          rec.Tags,
		Timestamp:     rec.CreatedAt,
		Score:         score,
		KeywordScore:  keyword,
		SemanticScore: semantic,
		Strategy:      strategy,
	}
}

// biasedFusion forces weighted fusion with the given weights unless the
// caller explicitly asked for rrf/max (which have no weight knobs).
func biasedFusion(opts FusionOptions, wk, ws float64) FusionOptions {
	if opts.Method == FusionRRF || opts.Method == FusionMax {
		return opts
	}
	opts.Method = FusionWeighted
	opts.WeightKeyword = wk
	opts.WeightSemantic = ws
	return opts
}

// resolveAdaptive implements spec §4.7's query-shape routing.
func (s *Searcher) resolveAdaptive(query string) Strategy {
	switch {
	case QueryHasIdentifierShape(query):
		return StrategyKeywordFirst
	case QueryHasConceptualShape(query):
		return StrategySemanticFirst
	default:
		return StrategyBalanced
	}
}

// sortResults orders by score desc, then more recent created_at, then lower
// id — the tie-break spec §4.7 specifies for rerank mode, applied uniformly.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].Timestamp.After(results[j].Timestamp)
		}
		return results[i].ID < results[j].ID
	})
}

func topN(scores map[int64]float64, n int) []int64 {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func cosineToUnit(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	cos := dot / (sqrtApprox(magA) * sqrtApprox(magB))
	return (cos + 1) / 2
}

func sqrtApprox(f float64) float64 {
	if f == 0 {
		return 0
	}
	x := f
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}
