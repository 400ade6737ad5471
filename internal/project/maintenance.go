// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package project

import (
	"context"

	"github.com/securamem/smem/internal/bundle"
	"github.com/securamem/smem/internal/health"
)

// GC runs the requested maintenance operations against this project's
// storage engine, stat'ing cached file paths against the project root to
// find stale digests.
func (c *Context) GC(ctx context.Context, opts health.GCOptions) (health.GCResult, error) {
	return health.Run(ctx, c.Storage, c.Layout.Root(), opts)
}

// Health computes the `health` rollup over this project's storage, vector
// backend, and journal.
func (c *Context) Health(ctx context.Context, sinceDays int) (health.Rollup, error) {
	return health.Compute(ctx, c.Storage, c.Vectors, c.Layout.JournalPath(), sinceDays)
}

// Export assembles a .smemctx bundle, using this project's key ring when
// opts.KeyRing is left nil.
func (c *Context) Export(ctx context.Context, opts bundle.ExportOptions) (bundle.ExportResult, error) {
	if opts.KeyRing == nil {
		opts.KeyRing = c.Keys
	}
	return bundle.Export(ctx, c.Storage, opts)
}

// Import ingests a .smemctx or legacy .agmctx bundle into this project's
// storage.
func (c *Context) Import(ctx context.Context, opts bundle.ImportOptions) (bundle.ImportResult, error) {
	return bundle.Import(ctx, c.Storage, opts)
}
