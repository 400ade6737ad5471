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
	"regexp"
	"strings"
)

// symbolPattern pairs a regex that marks the start of a symbol with the
// declared kind, used by ChunkHeuristic for languages with no registered
// tree-sitter grammar.
type symbolPattern struct {
	re   *regexp.Regexp
	kind string
}

var heuristicPatterns = map[string][]symbolPattern{
	"go": {
		{regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`), "function"},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+(?:struct|interface)\b`), "type"},
	},
	"python": {
		{regexp.MustCompile(`^(\s*)def\s+([A-Za-z_]\w*)`), "function"},
		{regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)`), "class"},
	},
	"javascript": {
		{regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$]\w*)`), "function"},
		{regexp.MustCompile(`^(?:export\s+)?class\s+([A-Za-z_$]\w*)`), "class"},
		{regexp.MustCompile(`^(?:export\s+)?const\s+([A-Za-z_$]\w*)\s*=\s*(?:async\s*)?\(`), "function"},
	},
	"typescript": {
		{regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$]\w*)`), "function"},
		{regexp.MustCompile(`^(?:export\s+)?class\s+([A-Za-z_$]\w*)`), "class"},
		{regexp.MustCompile(`^(?:export\s+)?interface\s+([A-Za-z_$]\w*)`), "interface"},
	},
	"java": {
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?class\s+([A-Za-z_]\w*)`), "class"},
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?[\w<>\[\]]+\s+([A-Za-z_]\w*)\s*\(`), "method"},
	},
	"ruby": {
		{regexp.MustCompile(`^\s*def\s+([A-Za-z_][\w?!=]*)`), "method"},
		{regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`), "class"},
		{regexp.MustCompile(`^\s*module\s+([A-Za-z_]\w*)`), "module"},
	},
}

// ChunkHeuristic splits content at lines matching a language's symbol regex
// table, used when no tree-sitter grammar is registered for language but a
// rough shape is still better than a blind line window. Returns
// (nil, ErrUnsupportedLanguage) if language has no pattern table, letting
// the caller fall back to ChunkByLines.
func ChunkHeuristic(file, language, content string, maxLines int) ([]Chunk, error) {
	patterns, ok := heuristicPatterns[language]
	if !ok {
		return nil, ErrUnsupportedLanguage
	}

	lines := strings.Split(content, "\n")
	type boundary struct {
		line int
		name string
		kind string
	}
	var boundaries []boundary
	for i, line := range lines {
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := m[len(m)-1]
			boundaries = append(boundaries, boundary{line: i, name: name, kind: p.kind})
			break
		}
	}
	if len(boundaries) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	for idx, b := range boundaries {
		end := len(lines)
		if idx+1 < len(boundaries) {
			end = boundaries[idx+1].line
		}
		if maxLines > 0 && end-b.line > maxLines {
			end = b.line + maxLines
		}
		body := strings.Join(lines[b.line:end], "\n")
		chunks = append(chunks, Chunk{
			File:          file,
			Language:      language,
			Content:       body,
			LineStart:     b.line + 1,
			LineEnd:       end,
			Symbol:        b.name,
			SymbolType:    b.kind,
			IndexStrategy: StrategyHeuristic,
		})
	}
	return finalizeChunks(chunks), nil
}
