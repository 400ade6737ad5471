// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// vecEntry holds a vector alongside its precomputed magnitude, the same
// shape the teacher's ToolEmbeddingCache keeps for its in-memory tool
// vectors, adapted here from tool-name keys to memory ids.
type vecEntry struct {
	vec []float32
	mag float64
}

// InProcessCosine holds every vector in memory and scores queries by cosine
// similarity. It is always available (no external dependency) and is the
// guaranteed fallback when no native ANN extension is present.
type InProcessCosine struct {
	mu      sync.RWMutex
	entries map[int64]vecEntry
	dim     int

	// loader supplies the full vector set at Init time (normally
	// storage.Engine.AllVectors); kept as a function to avoid an import
	// cycle between storage and vectorindex.
	loader func(ctx context.Context) (map[int64][]float32, error)
}

// NewInProcessCosine builds an InProcessCosine backend. loader is called
// once during Init to seed the in-memory map from persisted vectors.
func NewInProcessCosine(loader func(ctx context.Context) (map[int64][]float32, error)) *InProcessCosine {
	return &InProcessCosine{entries: make(map[int64]vecEntry), loader: loader}
}

func l2Norm(v []float32) float64 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	return math.Sqrt(sumSq)
}

func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func (c *InProcessCosine) Init(ctx context.Context) error {
	if c.loader == nil {
		return nil
	}
	vectors, err := c.loader(ctx)
	if err != nil {
		return fmt.Errorf("vectorindex: load vectors for in-process backend: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, v := range vectors {
		c.entries[id] = vecEntry{vec: v, mag: l2Norm(v)}
		if c.dim == 0 {
			c.dim = len(v)
		}
	}
	return nil
}

func (c *InProcessCosine) Add(ctx context.Context, id int64, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim != 0 && c.dim != len(vec) {
		return fmt.Errorf("InputInvalid: vector dim %d does not match index dim %d", len(vec), c.dim)
	}
	c.entries[id] = vecEntry{vec: vec, mag: l2Norm(vec)}
	if c.dim == 0 {
		c.dim = len(vec)
	}
	return nil
}

func (c *InProcessCosine) Remove(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *InProcessCosine) Query(ctx context.Context, vec []float32, opts QueryOptions) ([]Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	qMag := l2Norm(vec)
	if qMag == 0 {
		return nil, nil
	}

	k := opts.K
	if k <= 0 {
		k = 10
	}

	matches := make([]Match, 0, len(c.entries))
	for id, entry := range c.entries {
		if entry.mag == 0 {
			continue
		}
		cos := dotProduct(vec, entry.vec) / (qMag * entry.mag)
		score := (cos + 1) / 2 // map [-1,1] cosine to [0,1]
		if score < opts.Threshold {
			continue
		}
		matches = append(matches, Match{ID: id, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (c *InProcessCosine) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Backend: string(BackendInProcessCosine), Dim: c.dim, Count: int64(len(c.entries))}, nil
}

func (c *InProcessCosine) Dimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dim
}
