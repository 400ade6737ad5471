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

import "sort"

// FusionMethod names a way of combining keyword and semantic scores.
type FusionMethod string

const (
	FusionRRF      FusionMethod = "rrf"
	FusionWeighted FusionMethod = "weighted"
	FusionMax      FusionMethod = "max"
	FusionCombined FusionMethod = "combined"
)

// rrfK is the reciprocal-rank-fusion smoothing constant.
const rrfK = 60

// FusionOptions parameterizes Fuse.
type FusionOptions struct {
	Method         FusionMethod
	WeightKeyword  float64 // default 0.5
	WeightSemantic float64 // default 0.5
}

func (o FusionOptions) normalized() FusionOptions {
	if o.Method == "" {
		o.Method = FusionCombined
	}
	if o.WeightKeyword == 0 && o.WeightSemantic == 0 {
		o.WeightKeyword, o.WeightSemantic = 0.5, 0.5
	}
	return o
}

// Fuse combines per-id keyword and semantic scores into a single fused
// score per id, treating an id missing from either map as score 0 for that
// signal (spec §4.7: upsertVector may lag storeMemory; missing vectors are
// not an error, just a 0 semanticScore).
func Fuse(keyword, semantic map[int64]float64, opts FusionOptions) map[int64]float64 {
	opts = opts.normalized()

	ids := make(map[int64]struct{}, len(keyword)+len(semantic))
	for id := range keyword {
		ids[id] = struct{}{}
	}
	for id := range semantic {
		ids[id] = struct{}{}
	}

	switch opts.Method {
	case FusionRRF:
		return fuseRRF(keyword, semantic, ids)
	case FusionWeighted:
		return fuseWeighted(keyword, semantic, ids, opts.WeightKeyword, opts.WeightSemantic)
	case FusionMax:
		return fuseMax(keyword, semantic, ids)
	default: // FusionCombined
		return fuseWeighted(keyword, semantic, ids, 0.5, 0.5)
	}
}

func fuseWeighted(keyword, semantic map[int64]float64, ids map[int64]struct{}, wk, ws float64) map[int64]float64 {
	out := make(map[int64]float64, len(ids))
	for id := range ids {
		out[id] = wk*keyword[id] + ws*semantic[id]
	}
	return out
}

func fuseMax(keyword, semantic map[int64]float64, ids map[int64]struct{}) map[int64]float64 {
	out := make(map[int64]float64, len(ids))
	for id := range ids {
		k, s := keyword[id], semantic[id]
		if s > k {
			out[id] = s
		} else {
			out[id] = k
		}
	}
	return out
}

// fuseRRF ranks each signal independently then scores each id by the sum of
// 1/(k+rank) across signals it appears in, per Cormack et al.'s reciprocal
// rank fusion.
func fuseRRF(keyword, semantic map[int64]float64, ids map[int64]struct{}) map[int64]float64 {
	kRanks := rankOf(keyword)
	sRanks := rankOf(semantic)

	out := make(map[int64]float64, len(ids))
	for id := range ids {
		var score float64
		if r, ok := kRanks[id]; ok {
			score += 1.0 / float64(rrfK+r)
		}
		if r, ok := sRanks[id]; ok {
			score += 1.0 / float64(rrfK+r)
		}
		out[id] = score
	}
	return out
}

// rankOf returns each id's 1-based rank within scores, best (highest) score
// first.
func rankOf(scores map[int64]float64) map[int64]int {
	type pair struct {
		id    int64
		score float64
	}
	pairs := make([]pair, 0, len(scores))
	for id, s := range scores {
		pairs = append(pairs, pair{id, s})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		return pairs[i].id < pairs[j].id
	})
	ranks := make(map[int64]int, len(pairs))
	for i, p := range pairs {
		ranks[p.id] = i + 1
	}
	return ranks
}
