// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hybridsearch fuses lexical (BM25) and vector (cosine) ranking
// signals into a single scored result set, with pluggable strategies and
// fusion methods and a TTL cache over (query, options) digests.
package hybridsearch

import "math"

// BM25 tuning constants (Robertson et al.'s standard values).
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Document is one memory row as seen by the lexical index.
type Document struct {
	ID      int64
	Content string
	Context string
	Tags    []string
}

type bm25Doc struct {
	id  int64
	tf  map[string]int
	len int
}

// BM25Index is an inverted index over a corpus of memory documents,
// immutable after construction and safe for concurrent reads.
type BM25Index struct {
	docs   []bm25Doc
	idf    map[string]float64
	avgLen float64
}

// BuildBM25Index tokenizes every document's content+context+tags and
// computes Lucene-style smoothed IDF across the corpus.
func BuildBM25Index(docs []Document) *BM25Index {
	if len(docs) == 0 {
		return &BM25Index{idf: make(map[string]float64)}
	}

	built := make([]bm25Doc, 0, len(docs))
	df := make(map[string]int)
	totalLen := 0

	for _, d := range docs {
		doc := buildDoc(d)
		built = append(built, doc)
		totalLen += doc.len
		for term := range doc.tf {
			df[term]++
		}
	}

	n := len(built)
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		idf[term] = math.Log(float64(n+1)/float64(freq+1)) + 1.0
	}

	return &BM25Index{
		docs:   built,
		idf:    idf,
		avgLen: float64(totalLen) / float64(n),
	}
}

func buildDoc(d Document) bm25Doc {
	raw := d.Content + " " + d.Context + " "
	for _, tag := range d.Tags {
		raw += tag + " "
	}
	tokens := tokenize(raw)
	tf := make(map[string]int, len(tokens))
	for _, term := range tokens {
		tf[term]++
	}
	return bm25Doc{id: d.ID, tf: tf, len: len(tokens)}
}

// IsEmpty reports whether the index has no documents.
func (idx *BM25Index) IsEmpty() bool { return len(idx.docs) == 0 }

// Score returns, for every document with a nonzero match, a BM25 score
// normalized into [0,1] by dividing by the corpus maximum.
func (idx *BM25Index) Score(query string) map[int64]float64 {
	if query == "" || len(idx.docs) == 0 {
		return map[int64]float64{}
	}
	queryTerms := termSet(tokenize(query))
	if len(queryTerms) == 0 {
		return map[int64]float64{}
	}

	scores := make(map[int64]float64, len(idx.docs))
	var maxScore float64
	for _, doc := range idx.docs {
		score := bm25Score(queryTerms, doc, idx.idf, idx.avgLen)
		if score > 0 {
			scores[doc.id] = score
			if score > maxScore {
				maxScore = score
			}
		}
	}
	if maxScore > 0 {
		for id := range scores {
			scores[id] /= maxScore
		}
	}
	return scores
}

func bm25Score(queryTerms map[string]struct{}, doc bm25Doc, idf map[string]float64, avgLen float64) float64 {
	dl := float64(doc.len)
	var score float64
	for term := range queryTerms {
		tf, inDoc := doc.tf[term]
		if !inDoc {
			continue
		}
		termIDF, known := idf[term]
		if !known {
			continue
		}
		tfFloat := float64(tf)
		numerator := tfFloat * (bm25K1 + 1)
		lengthNorm := bm25K1 * (1.0 - bm25B + bm25B*dl/avgLen)
		score += termIDF * (numerator / (tfFloat + lengthNorm))
	}
	return score
}

// QueryHasIdentifierShape reports whether query looks like code/structured
// search (identifiers, numbers, quotes, dotted paths) rather than natural
// language, used by the adaptive strategy to pick keyword-first routing.
func QueryHasIdentifierShape(query string) bool {
	hasUnderscoreOrDot := false
	hasDigit := false
	hasQuote := false
	hasCamel := false
	for i, r := range query {
		switch {
		case r == '_' || r == '.':
			hasUnderscoreOrDot = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '"' || r == '\'' || r == '`':
			hasQuote = true
		case r >= 'A' && r <= 'Z' && i > 0:
			hasCamel = true
		}
	}
	return hasUnderscoreOrDot || hasQuote || hasDigit || hasCamel
}

var interrogatives = map[string]struct{}{
	"what": {}, "why": {}, "how": {}, "when": {}, "where": {}, "who": {}, "which": {}, "explain": {}, "describe": {},
}

// QueryHasConceptualShape reports whether query reads as natural-language
// intent (interrogatives or long free-text) rather than a lookup.
func QueryHasConceptualShape(query string) bool {
	for _, term := range tokenize(query) {
		if _, ok := interrogatives[term]; ok {
			return true
		}
	}
	return len(tokenize(query)) >= 6
}
