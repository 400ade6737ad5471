// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/securamem/smem/internal/storage"
)

// writeVectorBlob concatenates vectors in the given order into vectors.f32.
// Chunks with no stored vector contribute dim zero floats, keeping row i of
// map.csv aligned with vector i of vectors.f32 even when embedding lagged.
func writeVectorBlob(dir string, ids []int64, vecs map[int64][]float32, dim int) error {
	f, err := os.Create(filepath.Join(dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("bundle: create vectors.f32: %w", err)
	}
	defer f.Close()

	zero := make([]float32, dim)
	for _, id := range ids {
		v, ok := vecs[id]
		if !ok {
			v = zero
		}
		if _, err := f.Write(storage.EncodeVector(v)); err != nil {
			return fmt.Errorf("bundle: write vector for id %d: %w", id, err)
		}
	}
	return nil
}

// readVectorBlob reads count vectors of dim floats each, in map.csv order.
func readVectorBlob(dir string, count, dim int) ([][]float32, error) {
	if count == 0 || dim == 0 {
		return nil, nil
	}
	raw, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("bundle: read vectors.f32: %w", err)
	}
	want := count * dim * 4
	if len(raw) != want {
		return nil, fmt.Errorf("bundle: vectors.f32 is %d bytes, want %d (count=%d dim=%d)", len(raw), want, count, dim)
	}
	out := make([][]float32, count)
	stride := dim * 4
	for i := 0; i < count; i++ {
		out[i] = storage.DecodeVector(raw[i*stride : (i+1)*stride])
	}
	return out, nil
}
