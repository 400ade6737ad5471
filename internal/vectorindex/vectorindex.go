// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorindex defines the pluggable VectorIndex capability set (spec
// §4.4, §9's interface-polymorphism redesign flag) and its two backends:
// NativeANN, backed by a SQL extension, and InProcessCosine, an in-memory
// linear scan. Hybrid Search never reaches across this interface into a
// specific backend's internals.
package vectorindex

import (
	"context"
	"fmt"
)

// Match is one scored hit from a vector query.
type Match struct {
	ID    int64
	Score float64 // in [0,1]
}

// QueryOptions narrows a vector Query.
type QueryOptions struct {
	K         int
	Threshold float64 // matches below this score are dropped; 0 disables
}

// VectorIndex is the capability set every backend must implement. Backend
// selection happens once, at startup (see Select); callers never type-switch
// on the concrete implementation.
type VectorIndex interface {
	// Init prepares the backend for use (e.g. probing for a SQL extension).
	Init(ctx context.Context) error
	// Add inserts or replaces the vector for id.
	Add(ctx context.Context, id int64, vec []float32) error
	// Remove deletes the vector for id, if present.
	Remove(ctx context.Context, id int64) error
	// Query returns the top-K matches for vec, best first.
	Query(ctx context.Context, vec []float32, opts QueryOptions) ([]Match, error)
	// Stats reports backend-specific counters for `vector-status`.
	Stats(ctx context.Context) (Stats, error)
	// Dimensions returns the committed vector dimension, or 0 if unset.
	Dimensions() int
}

// Stats is reported by `vector-status`.
type Stats struct {
	Backend string
	Dim     int
	Count   int64
}

// Backend names the selectable implementations.
type Backend string

const (
	BackendAuto            Backend = "auto"
	BackendNativeANN       Backend = "native"
	BackendInProcessCosine Backend = "inprocess"
)

// ErrBackendUnavailable is returned by NativeANN.Init when the sqlite-vec
// extension cannot be loaded.
var ErrBackendUnavailable = fmt.Errorf("BackendUnavailable: native vector extension not available")

// Select picks a VectorIndex per spec §4.4: when requested is BackendAuto,
// NativeANN is tried first and InProcessCosine is the fallback on any Init
// failure. Returns the chosen index and the Backend name actually selected
// (for `vector-status` reporting).
func Select(ctx context.Context, requested Backend, native VectorIndex, fallback VectorIndex) (VectorIndex, Backend, error) {
	switch requested {
	case BackendNativeANN:
		if err := native.Init(ctx); err != nil {
			return nil, "", fmt.Errorf("vectorindex: native backend explicitly requested but unavailable: %w", err)
		}
		return native, BackendNativeANN, nil
	case BackendInProcessCosine:
		if err := fallback.Init(ctx); err != nil {
			return nil, "", fmt.Errorf("vectorindex: in-process backend init failed: %w", err)
		}
		return fallback, BackendInProcessCosine, nil
	case BackendAuto, "":
		if err := native.Init(ctx); err == nil {
			return native, BackendNativeANN, nil
		}
		if err := fallback.Init(ctx); err != nil {
			return nil, "", fmt.Errorf("vectorindex: both backends failed to initialize: %w", err)
		}
		return fallback, BackendInProcessCosine, nil
	default:
		return nil, "", fmt.Errorf("InputInvalid: unknown vector backend %q", requested)
	}
}
