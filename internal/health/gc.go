// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/securamem/smem/internal/storage"
)

// GCOptions selects which `gc` operations to run.
type GCOptions struct {
	PruneVectors     bool
	DropStaleDigests bool
	Vacuum           bool
}

// GCResult reports what each requested operation did.
type GCResult struct {
	VectorsPruned  int64
	DigestsDropped int64
	Vacuumed       bool
}

// Run executes the requested maintenance operations against eng. Stale
// digests are identified by stat'ing each cached path relative to
// projectRoot; the storage layer has no filesystem access of its own.
func Run(ctx context.Context, eng *storage.Engine, projectRoot string, opts GCOptions) (GCResult, error) {
	var res GCResult

	if opts.PruneVectors {
		n, err := eng.PruneOrphanVectors(ctx)
		if err != nil {
			return GCResult{}, fmt.Errorf("health: prune orphan vectors: %w", err)
		}
		res.VectorsPruned = n
	}

	if opts.DropStaleDigests {
		entries, err := eng.ListFileDigests(ctx, 0)
		if err != nil {
			return GCResult{}, fmt.Errorf("health: list file digests: %w", err)
		}
		var stale []string
		for _, e := range entries {
			if _, statErr := os.Stat(filepath.Join(projectRoot, e.File)); os.IsNotExist(statErr) {
				stale = append(stale, e.File)
			}
		}
		if len(stale) > 0 {
			n, err := eng.DropStaleDigests(ctx, stale)
			if err != nil {
				return GCResult{}, fmt.Errorf("health: drop stale digests: %w", err)
			}
			res.DigestsDropped = n
		}
	}

	if opts.Vacuum {
		if err := eng.Vacuum(ctx); err != nil {
			return GCResult{}, fmt.Errorf("health: vacuum: %w", err)
		}
		res.Vacuumed = true
	}

	return res, nil
}
