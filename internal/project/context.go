// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package project wires together every per-project component (storage,
// vector index, embedding, hybrid search, policy, audit, bundles, health)
// behind a single constructor. Nothing here is a package-level singleton:
// every field is produced fresh by Open and held on the returned Context, so
// two projects (or two tests) never share state.
package project

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/securamem/smem/internal/cryptostore"
	"github.com/securamem/smem/internal/embedding"
	"github.com/securamem/smem/internal/hybridsearch"
	"github.com/securamem/smem/internal/indexing"
	"github.com/securamem/smem/internal/paths"
	"github.com/securamem/smem/internal/policy"
	"github.com/securamem/smem/internal/storage"
	"github.com/securamem/smem/internal/vectorindex"
)

// Options configures Open.
type Options struct {
	// Root is the project directory; need not exist yet.
	Root string
	// DevMode disables at-rest encryption (tests, local scratch projects).
	DevMode bool
	// VectorBackend selects the ANN backend; defaults to auto-detect.
	VectorBackend vectorindex.Backend
	Logger        *slog.Logger
}

// Context holds every handle one project needs: filesystem layout, the
// encrypted storage engine, the selected vector backend, and the key ring
// signatures are issued from. Policy documents and audit journals are
// reloaded fresh on every call instead of cached here, since both are
// specified as stateless-per-invocation.
type Context struct {
	Layout        *paths.Layout
	Crypto        *cryptostore.Store
	Storage       *storage.Engine
	Vectors       vectorindex.VectorIndex
	VectorBackend vectorindex.Backend
	Keys          *cryptostore.KeyRing
	Log           *slog.Logger
}

// Open resolves the project layout, migrates a legacy data directory if
// present, opens (decrypting if needed) the Storage Engine, and selects a
// vector backend. Callers must Close the returned Context.
func Open(ctx context.Context, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	layout, err := paths.New(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("project: resolve layout: %w", err)
	}
	if err := layout.EnsureCanonicalDirs(); err != nil {
		return nil, fmt.Errorf("project: create data dirs: %w", err)
	}
	if layout.HasLegacyDir() {
		if _, err := layout.MigrateLegacy(); err != nil {
			return nil, fmt.Errorf("project: migrate legacy data dir: %w", err)
		}
	}

	crypto := cryptostore.New(opts.DevMode, logger)

	eng, err := storage.Open(ctx, storage.Options{
		PlaintextPath: layout.DBPath(),
		EncPath:       layout.DBEncPath(),
		Crypto:        crypto,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("project: open storage: %w", err)
	}

	native := vectorindex.NewNativeANN(eng.DB())
	fallback := vectorindex.NewInProcessCosine(eng.AllVectors)
	vecIndex, backend, err := vectorindex.Select(ctx, opts.VectorBackend, native, fallback)
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("project: select vector backend: %w", err)
	}

	keys := cryptostore.NewKeyRing(layout.ActiveKeyDir(), layout.ArchiveKeyDir())

	return &Context{
		Layout:        layout,
		Crypto:        crypto,
		Storage:       eng,
		Vectors:       vecIndex,
		VectorBackend: backend,
		Keys:          keys,
		Log:           logger,
	}, nil
}

// Close releases the storage engine, re-encrypting at rest if Crypto is set.
func (c *Context) Close() error {
	return c.Storage.Close()
}

// LoadPolicy reloads the policy document fresh from disk and returns a
// Broker over it, per spec §4.9's "stateless over a policy.json document
// loaded at each invocation" requirement.
func (c *Context) LoadPolicy() (*policy.Broker, error) {
	doc, err := policy.Load(c.Layout.PolicyPath())
	if err != nil {
		return nil, fmt.Errorf("project: load policy: %w", err)
	}
	return policy.New(doc), nil
}

// vectorSink adapts Storage Engine's UpsertVector to indexing.VectorSink.
type vectorSink struct{ eng *storage.Engine }

func (v vectorSink) Upsert(ctx context.Context, id int64, vec []float32) error {
	return v.eng.UpsertVector(ctx, id, vec)
}

// Indexer builds an Orchestrator wired to this project's storage engine and
// the embedding pipeline.
func (c *Context) Indexer() *indexing.Orchestrator {
	return &indexing.Orchestrator{
		Engine:  c.Storage,
		Embed:   embedding.Embed,
		Dim:     embedding.DefaultDim,
		Vectors: vectorSink{eng: c.Storage},
		Log:     c.Log,
	}
}

// Search builds a fresh Hybrid Search snapshot from every stored memory and
// runs one query against it. Searcher itself does no I/O, so the snapshot
// (records + their vectors) is rebuilt on every call rather than cached,
// matching hybridsearch.New's documented contract.
func (c *Context) Search(ctx context.Context, query string, opts hybridsearch.SearchOptions) ([]hybridsearch.Result, error) {
	memories, err := c.Storage.ListMemoriesByType(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("project: list memories: %w", err)
	}

	ids := make([]int64, len(memories))
	records := make([]hybridsearch.Record, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
		records[i] = hybridsearch.Record{
			ID:        m.ID,
			Content:   m.Content,
			Context:   m.Context,
			Type:      m.Type,
			Tags:      m.Tags,
			CreatedAt: m.CreatedAt,
		}
	}

	vecs, err := c.Storage.GetVectors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("project: load vectors: %w", err)
	}
	for i := range records {
		if v, ok := vecs[records[i].ID]; ok {
			records[i].Vector = v
		}
	}

	searcher := hybridsearch.New(records, c.Vectors, embedding.Embed, embedding.DefaultDim)
	return searcher.Search(ctx, query, opts)
}
