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

import "strings"

// ChunkByLines splits content into fixed-size, non-overlapping windows of at
// most maxLines lines each. It is the universal fallback strategy: it never
// fails and never depends on language-specific parsing.
func ChunkByLines(file, language, content string, maxLines int) []Chunk {
	if maxLines <= 0 {
		maxLines = DefaultMaxChunkLines
	}
	lines := strings.Split(content, "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}

	var chunks []Chunk
	for start := 0; start < len(lines); start += maxLines {
		end := start + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		chunks = append(chunks, Chunk{
			File:          file,
			Language:      language,
			Content:       body,
			LineStart:     start + 1,
			LineEnd:       end,
			IndexStrategy: StrategyLineWindow,
		})
	}
	return finalizeChunks(chunks)
}
