// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hybridsearch

import (
	"regexp"
	"strings"
	"unicode"
)

var noiseWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "on": {}, "for": {},
	"and": {}, "or": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "by": {},
	"with": {}, "at": {}, "it": {}, "this": {}, "that": {},
}

var wordRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

// tokenize splits s into lowercase terms, expanding camelCase/PascalCase
// runs (so "ReadFile" contributes both "read" and "file") and dropping noise
// words, so identifiers in code and plain-English query terms can match in
// the same BM25 vocabulary.
func tokenize(s string) []string {
	var out []string
	for _, word := range wordRe.FindAllString(s, -1) {
		for _, part := range splitCamel(word) {
			lower := strings.ToLower(part)
			if len(lower) < 2 {
				continue
			}
			if _, noise := noiseWords[lower]; noise {
				continue
			}
			out = append(out, lower)
		}
	}
	return out
}

func splitCamel(word string) []string {
	if word == strings.ToLower(word) || word == strings.ToUpper(word) {
		return []string{word}
	}
	var parts []string
	var cur []rune
	runes := []rune(word)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			parts = append(parts, string(cur))
			cur = nil
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

// termSet deduplicates a token list into a presence set.
func termSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
