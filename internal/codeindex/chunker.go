// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codeindex

import (
	"context"
	"log/slog"
)

// ChunkOptions configures ChunkFile.
type ChunkOptions struct {
	MaxChunkLines int
	// DisableAST forces the heuristic/line-window path even for languages
	// with a registered tree-sitter grammar, useful for testing fallback
	// behavior deterministically.
	DisableAST bool
}

// ChunkFile splits a file's content into Chunks using the most precise
// strategy available, falling through in order: tree-sitter AST boundaries,
// then regex symbol heuristics, then fixed-size line windows. Each fallback
// is logged at debug level so a slow or buggy grammar is visible without
// being fatal (spec §4.6: chunking never fails the whole index-code run).
func ChunkFile(ctx context.Context, log *slog.Logger, file, language, content string, opts ChunkOptions) []Chunk {
	if log == nil {
		log = slog.Default()
	}

	if !opts.DisableAST {
		chunks, err := ChunkAST(ctx, file, language, content)
		if err == nil && len(chunks) > 0 {
			return chunks
		}
		if err != nil && err != ErrUnsupportedLanguage {
			log.Debug("ast chunking failed, falling back", slog.String("file", file), slog.String("error", err.Error()))
		}
	}

	chunks, err := ChunkHeuristic(file, language, content, opts.MaxChunkLines)
	if err == nil && len(chunks) > 0 {
		return chunks
	}
	if err != nil && err != ErrUnsupportedLanguage {
		log.Debug("heuristic chunking failed, falling back", slog.String("file", file), slog.String("error", err.Error()))
	}

	return ChunkByLines(file, language, content, opts.MaxChunkLines)
}
