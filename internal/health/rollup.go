// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package health computes the `health` command's rollups (storage/vector/
// digest counts plus receipt-derived latency and error-rate) and implements
// `gc`'s maintenance operations over the Storage Engine.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/securamem/smem/internal/audit"
	"github.com/securamem/smem/internal/storage"
	"github.com/securamem/smem/internal/vectorindex"
)

// DefaultSinceDays is the `health --since` default window (spec §4.12).
const DefaultSinceDays = 7

// Rollup is the aggregated report `health` prints.
type Rollup struct {
	SinceDays        int
	MemoryCount      int64
	DBSizeBytes      int64
	VectorBackend    string
	VectorDim        int
	VectorCount      int64
	FileDigestCount  int64
	CommandCount     int
	ErrorCount       int
	ErrorRatePercent float64
	LatencyP50Ms     float64
	LatencyP95Ms     float64
}

// Compute gathers storage/vector/digest counts and, over the receipts
// referenced by the last sinceDays of journal entries, the error rate and
// p50/p95 command latency.
func Compute(ctx context.Context, eng *storage.Engine, vecIndex vectorindex.VectorIndex, journalPath string, sinceDays int) (Rollup, error) {
	if sinceDays <= 0 {
		sinceDays = DefaultSinceDays
	}
	r := Rollup{SinceDays: sinceDays}

	memCount, err := eng.CountMemoriesSince(ctx, "")
	if err != nil {
		return Rollup{}, fmt.Errorf("health: count memories: %w", err)
	}
	r.MemoryCount = memCount

	size, err := eng.FileSize(ctx)
	if err != nil {
		return Rollup{}, fmt.Errorf("health: db size: %w", err)
	}
	r.DBSizeBytes = size

	digestCount, err := eng.CountFileDigests(ctx)
	if err != nil {
		return Rollup{}, fmt.Errorf("health: count file digests: %w", err)
	}
	r.FileDigestCount = digestCount

	if vecIndex != nil {
		stats, err := vecIndex.Stats(ctx)
		if err != nil {
			return Rollup{}, fmt.Errorf("health: vector stats: %w", err)
		}
		r.VectorBackend = stats.Backend
		r.VectorDim = stats.Dim
		r.VectorCount = stats.Count
	}

	entries, err := audit.ReadJournal(journalPath)
	if err != nil {
		return Rollup{}, fmt.Errorf("health: read journal: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -sinceDays)
	var durationsSec []float64
	for _, e := range entries {
		if e.Ts.Before(cutoff) || e.Receipt == "" {
			continue
		}
		receipt, err := audit.ReadReceipt(e.Receipt)
		if err != nil {
			continue
		}
		r.CommandCount++
		if !receipt.Success {
			r.ErrorCount++
		}
		if !receipt.EndTime.IsZero() && !receipt.StartTime.IsZero() {
			durationsSec = append(durationsSec, receipt.EndTime.Sub(receipt.StartTime).Seconds())
		}
	}
	if r.CommandCount > 0 {
		r.ErrorRatePercent = 100 * float64(r.ErrorCount) / float64(r.CommandCount)
	}

	p50, p95, err := latencyQuantiles(durationsSec)
	if err != nil {
		return Rollup{}, fmt.Errorf("health: compute latency quantiles: %w", err)
	}
	r.LatencyP50Ms = p50 * 1000
	r.LatencyP95Ms = p95 * 1000

	return r, nil
}
