// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/securamem/smem/internal/cryptostore"
)

// DefaultPoolSize is the bounded connection pool size from spec §5.
const DefaultPoolSize = 3

// Engine is the single-writer, multi-reader embedded SQL store for one
// project. It owns the DB file and, when encryption is enabled, its
// encrypted sibling.
type Engine struct {
	db            *sql.DB
	log           *slog.Logger
	plaintextPath string
	encPath       string
	crypto        *cryptostore.Store
}

// Options configures Open.
type Options struct {
	PlaintextPath string
	EncPath       string
	Crypto        *cryptostore.Store // nil disables at-rest encryption entirely
	PoolSize      int
	Logger        *slog.Logger
}

// Open decrypts an existing envelope (if any and if Crypto is set), opens the
// modernc.org/sqlite connection pool, and applies the schema. Schema
// application is idempotent (spec §4.3: "on unreadable schema, the engine
// MUST recreate auxiliary tables non-destructively").
func Open(ctx context.Context, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	if opts.Crypto != nil {
		if err := opts.Crypto.DecryptOnOpen(opts.EncPath, opts.PlaintextPath); err != nil {
			return nil, fmt.Errorf("storage: decrypt on open: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.PlaintextPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	for _, pragma := range pragmaStatements {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: apply pragma %q: %w", pragma, err)
		}
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: apply schema: %w", err)
		}
	}

	return &Engine{
		db:            db,
		log:           logger,
		plaintextPath: opts.PlaintextPath,
		encPath:       opts.EncPath,
		crypto:        opts.Crypto,
	}, nil
}

// Close closes the connection pool and, if encryption is enabled, encrypts
// the plaintext file on close. Encryption failure is logged and deferred,
// never returned as a fatal error to the caller (spec §4.2).
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("storage: close pool: %w", err)
	}
	if e.crypto == nil {
		return nil
	}
	if err := e.crypto.EncryptOnClose(e.plaintextPath, e.encPath); err != nil {
		e.log.Warn("storage: encryption on close deferred", slog.Any("error", err))
	}
	return nil
}

// DB exposes the underlying pool for callers that need raw SQL access (e.g.
// the NativeANN vector backend, which shares this connection).
func (e *Engine) DB() *sql.DB { return e.db }

// Memory is one row of the memories table, metadata already decoded.
type Memory struct {
	ID           int64
	Content      string
	ContentHash  string
	Context      string
	Type         string
	Tags         []string
	MetadataJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContentHash computes the SHA-256 hex digest used for dedup (spec §3).
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}

// StoreMemoryParams are the inputs to StoreMemory.
type StoreMemoryParams struct {
	Content      string
	Context      string
	Type         string
	Tags         []string
	MetadataJSON string
}

// StoreMemory inserts or, if the content hash already exists, replaces a
// memory while preserving its id (spec §4.3 "INSERT OR REPLACE semantics
// that preserves id when hash matches").
func (e *Engine) StoreMemory(ctx context.Context, p StoreMemoryParams) (int64, error) {
	if strings.TrimSpace(p.Content) == "" {
		return 0, fmt.Errorf("InputInvalid: content must not be empty")
	}
	if p.Context == "" {
		p.Context = "general"
	}
	if p.Type == "" {
		p.Type = "general"
	}
	tagsJSON, err := json.Marshal(p.Tags)
	if err != nil {
		return 0, fmt.Errorf("storage: marshal tags: %w", err)
	}
	if p.MetadataJSON == "" {
		p.MetadataJSON = "{}"
	}
	hash := ContentHash(p.Content)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var existingID int64
	err = e.db.QueryRowContext(ctx, `SELECT id FROM memories WHERE content_hash = ?`, hash).Scan(&existingID)
	switch {
	case err == nil:
		_, err = e.db.ExecContext(ctx, `UPDATE memories SET content=?, context=?, type=?, tags_json=?, metadata_json=?, updated_at=? WHERE id=?`,
			p.Content, p.Context, p.Type, string(tagsJSON), p.MetadataJSON, now, existingID)
		if err != nil {
			return 0, fmt.Errorf("storage: update existing memory: %w", err)
		}
		return existingID, nil
	case err == sql.ErrNoRows:
		res, err := e.db.ExecContext(ctx, `INSERT INTO memories(content, context, type, tags_json, metadata_json, content_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Content, p.Context, p.Type, string(tagsJSON), p.MetadataJSON, hash, now, now)
		if err != nil {
			return 0, fmt.Errorf("storage: insert memory: %w", err)
		}
		return res.LastInsertId()
	default:
		return 0, fmt.Errorf("storage: lookup content hash: %w", err)
	}
}

// SearchOptions narrows SearchMemories.
type SearchOptions struct {
	Limit         int
	Offset        int
	Type          string
	Context       string
	Tags          []string
	MinRelevance  float64
}

// SearchResult pairs a Memory with its FTS-derived relevance score.
type SearchResult struct {
	Memory    Memory
	Relevance float64
}

// relevanceFromRank maps an FTS5 bm25() rank (more negative = more relevant)
// to [0,1] via the monotone map from spec §4.3: 1/(1+0.1*|rank|).
func relevanceFromRank(rank float64) float64 {
	r := 1.0 / (1.0 + 0.1*absFloat(rank))
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SearchMemories runs a full-text query and returns ranked results.
func (e *Engine) SearchMemories(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var b strings.Builder
	b.WriteString(`SELECT m.id, m.content, m.context, m.type, m.tags_json, m.metadata_json, m.content_hash, m.created_at, m.updated_at, bm25(memories_fts) AS rank
		FROM memories_fts JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ?`)
	args := []any{query}

	if opts.Type != "" {
		b.WriteString(" AND m.type = ?")
		args = append(args, opts.Type)
	}
	if opts.Context != "" {
		b.WriteString(" AND m.context = ?")
		args = append(args, opts.Context)
	}
	b.WriteString(" ORDER BY rank LIMIT ? OFFSET ?")
	args = append(args, limit, opts.Offset)

	rows, err := e.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: search memories: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var m Memory
		var tagsJSON string
		var rank float64
		var created, updated string
		if err := rows.Scan(&m.ID, &m.Content, &m.Context, &m.Type, &tagsJSON, &m.MetadataJSON, &m.ContentHash, &created, &updated, &rank); err != nil {
			return nil, fmt.Errorf("storage: scan search row: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

		rel := relevanceFromRank(rank)
		if rel < opts.MinRelevance {
			continue
		}
		if len(opts.Tags) > 0 && !containsAny(m.Tags, opts.Tags) {
			continue
		}
		out = append(out, SearchResult{Memory: m, Relevance: rel})
	}
	return out, rows.Err()
}

func containsAny(haystack, needles []string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, h := range haystack {
		set[h] = struct{}{}
	}
	for _, n := range needles {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

// GetMemory fetches one memory by id.
func (e *Engine) GetMemory(ctx context.Context, id int64) (Memory, error) {
	var m Memory
	var tagsJSON, created, updated string
	err := e.db.QueryRowContext(ctx, `SELECT id, content, context, type, tags_json, metadata_json, content_hash, created_at, updated_at FROM memories WHERE id=?`, id).
		Scan(&m.ID, &m.Content, &m.Context, &m.Type, &tagsJSON, &m.MetadataJSON, &m.ContentHash, &created, &updated)
	if err == sql.ErrNoRows {
		return Memory{}, fmt.Errorf("NotFound: memory %d", id)
	}
	if err != nil {
		return Memory{}, fmt.Errorf("storage: get memory: %w", err)
	}
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return m, nil
}

// DeleteCodeByFile removes all type='code' memories whose metadata.file
// matches relPath (both the stored JSON metadata and vectors via FK cascade).
func (e *Engine) DeleteCodeByFile(ctx context.Context, relPath string) error {
	_, err := e.db.ExecContext(ctx,
		`DELETE FROM memories WHERE type='code' AND json_extract(metadata_json, '$.code.file') = ?`, relPath)
	if err != nil {
		return fmt.Errorf("storage: delete code by file: %w", err)
	}
	return nil
}

// GetCodeChunkContentsByFile returns the content of every stored type='code'
// chunk for relPath, ordered by line start. Used to reconstruct a prior
// chunk-set snapshot for change-summary logging before the chunks are
// replaced.
func (e *Engine) GetCodeChunkContentsByFile(ctx context.Context, relPath string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT content FROM memories WHERE type='code' AND json_extract(metadata_json, '$.code.file') = ?
		 ORDER BY json_extract(metadata_json, '$.code.lineStart')`, relPath)
	if err != nil {
		return nil, fmt.Errorf("storage: get code chunk contents by file: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("storage: scan code chunk content: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// UpdateCodeFilePath rewrites metadata.file in place for a rename, avoiding
// a delete+reinsert (spec §4.8 rename optimization).
func (e *Engine) UpdateCodeFilePath(ctx context.Context, oldPath, newPath string) (int64, error) {
	res, err := e.db.ExecContext(ctx,
		`UPDATE memories SET metadata_json = json_set(metadata_json, '$.code.file', ?), updated_at = ?
		 WHERE type='code' AND json_extract(metadata_json, '$.code.file') = ?`,
		newPath, time.Now().UTC().Format(time.RFC3339Nano), oldPath)
	if err != nil {
		return 0, fmt.Errorf("storage: update code file path: %w", err)
	}
	return res.RowsAffected()
}

// ListMemoriesByType returns every memory of the given type, ordered by id,
// for bulk consumers like the Bundle Codec's export path. An empty
// typeFilter returns every memory regardless of type.
func (e *Engine) ListMemoriesByType(ctx context.Context, typeFilter string) ([]Memory, error) {
	query := `SELECT id, content, context, type, tags_json, metadata_json, content_hash, created_at, updated_at FROM memories`
	args := []any{}
	if typeFilter != "" {
		query += ` WHERE type = ?`
		args = append(args, typeFilter)
	}
	query += ` ORDER BY id`

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list memories by type: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var tagsJSON, created, updated string
		if err := rows.Scan(&m.ID, &m.Content, &m.Context, &m.Type, &tagsJSON, &m.MetadataJSON, &m.ContentHash, &created, &updated); err != nil {
			return nil, fmt.Errorf("storage: scan memory row: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMemoriesExcludingType returns every memory whose type does not match
// excludeType, ordered by id (used to collect "everything that isn't code"
// for the Bundle Codec's notes.jsonl).
func (e *Engine) ListMemoriesExcludingType(ctx context.Context, excludeType string) ([]Memory, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, content, context, type, tags_json, metadata_json, content_hash, created_at, updated_at
		 FROM memories WHERE type != ? ORDER BY id`, excludeType)
	if err != nil {
		return nil, fmt.Errorf("storage: list memories excluding type: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var tagsJSON, created, updated string
		if err := rows.Scan(&m.ID, &m.Content, &m.Context, &m.Type, &tagsJSON, &m.MetadataJSON, &m.ContentHash, &created, &updated); err != nil {
			return nil, fmt.Errorf("storage: scan memory row: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMemoriesSince counts memories created at or after the given RFC3339
// timestamp.
func (e *Engine) CountMemoriesSince(ctx context.Context, isoTime string) (int64, error) {
	var n int64
	err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE created_at >= ?`, isoTime).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count memories since: %w", err)
	}
	return n, nil
}

// CountVectorsSince counts vector rows whose owning memory was created at or
// after the given timestamp.
func (e *Engine) CountVectorsSince(ctx context.Context, isoTime string) (int64, error) {
	var n int64
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_vectors v JOIN memories m ON m.id=v.id WHERE m.created_at >= ?`, isoTime).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count vectors since: %w", err)
	}
	return n, nil
}

// Vacuum reclaims storage.
func (e *Engine) Vacuum(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, `VACUUM`)
	if err != nil {
		return fmt.Errorf("storage: vacuum: %w", err)
	}
	return nil
}

// PruneOrphanVectors deletes vector rows whose memory id no longer exists.
// With ON DELETE CASCADE this should be a no-op in practice, but it is kept
// as an explicit, idempotent maintenance operation for GC (spec §4.12) and
// for any vector inserted through a path that bypassed the FK (e.g. a
// restored bundle import).
func (e *Engine) PruneOrphanVectors(ctx context.Context) (int64, error) {
	res, err := e.db.ExecContext(ctx, `DELETE FROM memory_vectors WHERE id NOT IN (SELECT id FROM memories)`)
	if err != nil {
		return 0, fmt.Errorf("storage: prune orphan vectors: %w", err)
	}
	return res.RowsAffected()
}

// FileSize reports the plaintext DB file size; callers should call this
// only while the DB is decrypted (i.e. during an open session).
func (e *Engine) FileSize(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := e.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("storage: read page_count: %w", err)
	}
	if err := e.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("storage: read page_size: %w", err)
	}
	return pageCount * pageSize, nil
}
