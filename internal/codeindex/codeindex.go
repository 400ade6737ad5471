// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codeindex turns source files into content-addressed chunks ready
// for storage and embedding. It walks a project tree, skips vendor/build
// noise, hashes file contents for change detection, and splits files into
// chunks using the most precise strategy available: tree-sitter AST
// boundaries when a grammar is registered for the language, a regex-based
// symbol heuristic otherwise, and fixed-size line windows as the universal
// fallback.
package codeindex

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChunkStrategy names how a Chunk's boundaries were determined.
type ChunkStrategy string

const (
	StrategyASTSymbol  ChunkStrategy = "ast_symbol"
	StrategyHeuristic  ChunkStrategy = "heuristic_symbol"
	StrategyLineWindow ChunkStrategy = "line_window"
)

// Chunk is one unit of indexable code content.
type Chunk struct {
	File          string
	Language      string
	Content       string
	LineStart     int // 1-based, inclusive
	LineEnd       int // 1-based, inclusive
	Symbol        string
	SymbolType    string
	ContentSha    string
	IndexStrategy ChunkStrategy
}

// DefaultMaxChunkLines bounds line-window chunk size when no finer-grained
// boundary is available.
const DefaultMaxChunkLines = 200

// ContentSha256 returns a hex SHA-256 digest of s, used for both file-level
// digests and chunk-level content hashes (spec §3 FileDigest, CodeChunkKey).
func ContentSha256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// finalizeChunks fills in ContentSha for every chunk produced by a strategy;
// callers build Content/LineStart/LineEnd/Symbol and defer hashing to here so
// the hash always reflects exactly what was stored.
func finalizeChunks(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].ContentSha = ContentSha256(chunks[i].Content)
	}
	return chunks
}
