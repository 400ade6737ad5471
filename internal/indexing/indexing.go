// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package indexing orchestrates turning a source tree into stored, embedded
// memories: one-shot index-code/reindex runs and a debounced filesystem
// watcher, all funneled through a per-file delete-then-insert on the Storage
// Engine. The delete and the chunk inserts are separate statements, not one
// database transaction.
package indexing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/securamem/smem/internal/codeindex"
	"github.com/securamem/smem/internal/metadata"
	"github.com/securamem/smem/internal/storage"
	"github.com/securamem/smem/internal/telemetry"
)

// indexingTracer is the shared otel tracer for indexing spans.
var indexingTracer = telemetry.Tracer()

// indexingMeter backs the files-indexed/chunks-saved counters recorded
// after each successful run; a no-op instrument (the error case below) is
// silently harmless since that's exactly what the default global meter
// provides before Setup installs a real one.
var indexingMeter = telemetry.Meter()

var (
	filesIndexedCounter, _ = indexingMeter.Int64Counter("indexing.files_indexed",
		metric.WithDescription("files walked and indexed per index-code/reindex run"))
	chunksSavedCounter, _ = indexingMeter.Int64Counter("indexing.chunks_saved",
		metric.WithDescription("chunks stored per index-code/reindex run"))
)

// optionsValidator checks the struct-tag invariants on Options below. A
// single package-level instance is safe for concurrent use (the validator
// package documents this) and avoids re-parsing struct tags per call.
var optionsValidator = validator.New()

// DefaultConcurrency bounds how many files are chunked/embedded/stored in
// parallel during index-code/reindexFolder.
const DefaultConcurrency = 4

// Options configures an indexing run.
type Options struct {
	Include []string
	Exclude []string
	// MaxChunkLines overrides codeindex.DefaultMaxChunkLines. nil means
	// "unset, use the default"; a non-nil value must be >= 1 (spec §8:
	// "maxChunk < 1 is rejected as InputInvalid"), distinguishing an
	// explicit 0 or negative value from the caller simply not setting it.
	MaxChunkLines *int
	Symbols       bool // heuristic/AST symbol chunking vs line windows only
	TreeSitter    *bool
	Diff          bool // skip files whose digest is unchanged
	Concurrency   int
}

func (o Options) chunkOptions() codeindex.ChunkOptions {
	opts := codeindex.ChunkOptions{}
	if o.MaxChunkLines != nil {
		opts.MaxChunkLines = *o.MaxChunkLines
	}
	if !o.Symbols {
		opts.DisableAST = true
	}
	if o.TreeSitter != nil && !*o.TreeSitter {
		opts.DisableAST = true
	}
	return opts
}

// validatedMaxChunkLines mirrors Options for struct-tag validation: an
// omitempty pointer skips the check entirely when the caller leaves
// MaxChunkLines unset, and applies min=1 only when it is set.
type validatedMaxChunkLines struct {
	MaxChunkLines *int `validate:"omitempty,min=1"`
}

// validate rejects option combinations spec §8 calls out as InputInvalid
// before any file is walked or chunked.
func (o Options) validate() error {
	if err := optionsValidator.Struct(validatedMaxChunkLines{MaxChunkLines: o.MaxChunkLines}); err != nil {
		return fmt.Errorf("InputInvalid: maxChunk must be >= 1, got %d", *o.MaxChunkLines)
	}
	return nil
}

// Result summarizes an index-code run.
type Result struct {
	Saved     int
	FileCount int
	Digest    string // digest-of-digests over every indexed file, for the receipt
}

// FolderResult summarizes a reindexFolder run.
type FolderResult struct {
	Files  int
	Added  int
	Errors []string
}

// Embedder produces a vector for a chunk's content; nil disables embedding.
type Embedder func(text string, dim int) []float32

// VectorSink receives vectors as they are produced; nil disables persistence
// of vectors (metadata/content are still stored). Matches vectorindex/
// storage's Add/UpsertVector shape without binding to either concrete type.
type VectorSink interface {
	Upsert(ctx context.Context, id int64, vec []float32) error
}

// Orchestrator ties the file walker/chunker to the Storage Engine and an
// optional embedding pipeline.
type Orchestrator struct {
	Engine  *storage.Engine
	Embed   Embedder
	Dim     int
	Vectors VectorSink
	Log     *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// IndexCode walks root and indexes every matching file, per spec §4.8.
func (o *Orchestrator) IndexCode(ctx context.Context, root string, opts Options) (result Result, err error) {
	ctx, span := indexingTracer.Start(ctx, "indexing.IndexCode",
		trace.WithAttributes(attribute.String("root", root)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("files_indexed", result.FileCount),
				attribute.Int("chunks_saved", result.Saved),
			)
			filesIndexedCounter.Add(ctx, int64(result.FileCount))
			chunksSavedCounter.Add(ctx, int64(result.Saved))
		}
		span.End()
	}()

	if err := opts.validate(); err != nil {
		return Result{}, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	type fileOutcome struct {
		saved  int
		digest string
	}

	var entries []codeindex.FileEntry
	walkOpts := codeindex.WalkOptions{IncludeGlobs: opts.Include, ExcludeGlobs: opts.Exclude}
	if err := codeindex.Walk(root, walkOpts, func(fe codeindex.FileEntry) error {
		entries = append(entries, fe)
		return nil
	}); err != nil {
		return Result{}, fmt.Errorf("indexing: walk %s: %w", root, err)
	}

	outcomes := make([]fileOutcome, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, fe := range entries {
		i, fe := i, fe
		g.Go(func() error {
			saved, digest, err := o.indexOneFile(gctx, fe, opts)
			if err != nil {
				return fmt.Errorf("indexing: %s: %w", fe.RelPath, err)
			}
			outcomes[i] = fileOutcome{saved: saved, digest: digest}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	h := sha256.New()
	total := 0
	for _, oc := range outcomes {
		total += oc.saved
		if oc.digest != "" {
			h.Write([]byte(oc.digest))
		}
	}

	return Result{Saved: total, FileCount: len(entries), Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

// indexOneFile applies the diff check, deletes stale chunks, chunks the
// file, stores each chunk and its (best-effort) vector, and refreshes the
// file digest. Returns (0, digest, nil) when diff mode skips an unchanged
// file.
func (o *Orchestrator) indexOneFile(ctx context.Context, fe codeindex.FileEntry, opts Options) (int, string, error) {
	content, err := os.ReadFile(fe.AbsPath)
	if err != nil {
		return 0, "", fmt.Errorf("read: %w", err)
	}
	digest := codeindex.ContentSha256(string(content))

	if opts.Diff {
		if prev, ok, err := o.Engine.GetFileDigest(ctx, fe.RelPath); err == nil && ok && prev == digest {
			return 0, digest, nil
		}
	}

	// Previous entries for this file are removed before inserting new
	// chunks, under both path spellings it may have been stored under.
	if err := o.Engine.DeleteCodeByFile(ctx, fe.RelPath); err != nil {
		return 0, "", fmt.Errorf("delete stale chunks: %w", err)
	}
	if alt := filepath.ToSlash(fe.AbsPath); alt != fe.RelPath {
		_ = o.Engine.DeleteCodeByFile(ctx, alt)
	}

	language := codeindex.LanguageForPath(fe.RelPath)
	var chunks []codeindex.Chunk
	if opts.Symbols {
		chunks = codeindex.ChunkFile(ctx, o.logger(), fe.RelPath, language, string(content), opts.chunkOptions())
	} else {
		chunks = codeindex.ChunkByLines(fe.RelPath, language, string(content), opts.chunkOptions().MaxChunkLines)
	}

	saved := 0
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return saved, digest, ctx.Err()
		}
		id, err := o.storeChunk(ctx, chunk, digest)
		if err != nil {
			return saved, digest, err
		}
		saved++
		o.embedBestEffort(ctx, id, chunk.Content)
	}

	if err := o.Engine.SetFileDigest(ctx, fe.RelPath, digest); err != nil {
		return saved, "", fmt.Errorf("set file digest: %w", err)
	}

	return saved, digest, nil
}

func (o *Orchestrator) storeChunk(ctx context.Context, chunk codeindex.Chunk, fileDigest string) (int64, error) {
	strategy := metadata.StrategyLineChunks
	switch chunk.IndexStrategy {
	case codeindex.StrategyASTSymbol:
		strategy = metadata.StrategyTreeSitterAST
	case codeindex.StrategyHeuristic:
		strategy = metadata.StrategyHeuristicSymbols
	}
	meta, err := metadata.NewCode(metadata.CodeChunkMeta{
		File:          chunk.File,
		Language:      chunk.Language,
		LineStart:     chunk.LineStart,
		LineEnd:       chunk.LineEnd,
		ContentSha:    chunk.ContentSha,
		Symbol:        chunk.Symbol,
		SymbolType:    chunk.SymbolType,
		FileDigest:    fileDigest,
		IndexStrategy: strategy,
	})
	if err != nil {
		return 0, fmt.Errorf("build metadata: %w", err)
	}
	metaJSON, err := metadata.MarshalForStorage(meta)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	id, err := o.Engine.StoreMemory(ctx, storage.StoreMemoryParams{
		Content:      chunk.Content,
		Context:      chunk.File,
		Type:         "code",
		MetadataJSON: metaJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("store memory: %w", err)
	}
	return id, nil
}

// embedBestEffort never fails the indexing run: embedding/vector failures
// are logged and left for a later reindex to fill in (spec §4.8).
func (o *Orchestrator) embedBestEffort(ctx context.Context, id int64, content string) {
	if o.Embed == nil || o.Vectors == nil {
		return
	}
	vec := o.Embed(content, o.Dim)
	if err := o.Vectors.Upsert(ctx, id, vec); err != nil {
		o.logger().Warn("embedding upsert failed, vector left for later reindex",
			slog.Int64("memory_id", id), slog.String("error", err.Error()))
	}
}

// ReindexSingleFile wipes and re-inserts chunks for one file. The wipe and
// the inserts are not one transaction: a failure part-way leaves the file's
// old chunks deleted and only the chunks stored so far in place. A
// reindex has no prior raw-text snapshot to diff against (only the old
// chunk set survives in storage, not the file content that produced it), so
// the change summary compares old chunk content against the new file's
// content rather than old-text-vs-new-text the way watch-code does.
func (o *Orchestrator) ReindexSingleFile(ctx context.Context, path string, opts Options) (err error) {
	ctx, span := indexingTracer.Start(ctx, "indexing.ReindexSingleFile",
		trace.WithAttributes(attribute.String("file", path)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := opts.validate(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("indexing: stat %s: %w", path, err)
	}
	fe := codeindex.FileEntry{AbsPath: path, RelPath: filepath.ToSlash(path), Size: info.Size()}

	if oldChunks, err := o.Engine.GetCodeChunkContentsByFile(ctx, fe.RelPath); err == nil && len(oldChunks) > 0 {
		if newContent, readErr := os.ReadFile(path); readErr == nil {
			oldJoined := strings.Join(oldChunks, "\n")
			if summary, diffErr := unifiedDiff(fe.RelPath, oldJoined, string(newContent)); diffErr == nil && summary != "" {
				o.logger().Debug("reindex-file: change summary", slog.String("file", fe.RelPath), slog.String("diff", summary))
			}
		}
	}

	opts.Diff = false
	_, _, err = o.indexOneFile(ctx, fe, opts)
	return err
}

// ReindexFolder reindexes every file under folder, per spec §4.8.
func (o *Orchestrator) ReindexFolder(ctx context.Context, folder string, opts Options) (result FolderResult, err error) {
	ctx, span := indexingTracer.Start(ctx, "indexing.ReindexFolder",
		trace.WithAttributes(attribute.String("folder", folder)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("files_reindexed", result.Files),
				attribute.Int("chunks_added", result.Added),
				attribute.Int("file_errors", len(result.Errors)),
			)
			filesIndexedCounter.Add(ctx, int64(result.Files))
			chunksSavedCounter.Add(ctx, int64(result.Added))
		}
		span.End()
	}()

	if err := opts.validate(); err != nil {
		return FolderResult{}, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var entries []codeindex.FileEntry
	if err := codeindex.Walk(folder, codeindex.WalkOptions{IncludeGlobs: opts.Include, ExcludeGlobs: opts.Exclude}, func(fe codeindex.FileEntry) error {
		entries = append(entries, fe)
		return nil
	}); err != nil {
		return FolderResult{}, fmt.Errorf("indexing: walk %s: %w", folder, err)
	}

	result = FolderResult{Files: len(entries)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	addedCh := make(chan int, len(entries))
	errCh := make(chan string, len(entries))

	for _, fe := range entries {
		fe := fe
		g.Go(func() error {
			saved, _, err := o.indexOneFile(gctx, fe, opts)
			if err != nil {
				errCh <- fmt.Sprintf("%s: %v", fe.RelPath, err)
				return nil // one file's failure does not abort the folder run
			}
			addedCh <- saved
			return nil
		})
	}
	_ = g.Wait()
	close(addedCh)
	close(errCh)

	for n := range addedCh {
		result.Added += n
	}
	for e := range errCh {
		result.Errors = append(result.Errors, e)
	}
	return result, nil
}
