// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// chunkMapHeader is the fixed map.csv header, normative per spec §4.11.
var chunkMapHeader = []string{"id", "file", "lang", "line_start", "line_end", "symbol", "type", "timestamp", "chunk_sha256"}

// ChunkRow is one row of map.csv: a code chunk's identity and coordinates,
// in the same order as its vector in vectors.f32.
type ChunkRow struct {
	ID          int64
	File        string
	Lang        string
	LineStart   int
	LineEnd     int
	Symbol      string
	Type        string
	Timestamp   string
	ChunkSha256 string
}

func writeChunkMap(dir string, rows []ChunkRow) error {
	f, err := os.Create(filepath.Join(dir, mapFile))
	if err != nil {
		return fmt.Errorf("bundle: create map.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(chunkMapHeader); err != nil {
		return fmt.Errorf("bundle: write map.csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.ID, 10),
			r.File,
			r.Lang,
			strconv.Itoa(r.LineStart),
			strconv.Itoa(r.LineEnd),
			r.Symbol,
			r.Type,
			r.Timestamp,
			r.ChunkSha256,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("bundle: write map.csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func readChunkMap(dir string) ([]ChunkRow, error) {
	f, err := os.Open(filepath.Join(dir, mapFile))
	if err != nil {
		return nil, fmt.Errorf("bundle: open map.csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("bundle: read map.csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]ChunkRow, 0, len(records)-1)
	for _, rec := range records[1:] { // skip header
		if len(rec) != len(chunkMapHeader) {
			return nil, fmt.Errorf("bundle: map.csv row has %d fields, want %d", len(rec), len(chunkMapHeader))
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bundle: map.csv id %q: %w", rec[0], err)
		}
		lineStart, _ := strconv.Atoi(rec[3])
		lineEnd, _ := strconv.Atoi(rec[4])
		rows = append(rows, ChunkRow{
			ID:          id,
			File:        rec[1],
			Lang:        rec[2],
			LineStart:   lineStart,
			LineEnd:     lineEnd,
			Symbol:      rec[5],
			Type:        rec[6],
			Timestamp:   rec[7],
			ChunkSha256: rec[8],
		})
	}
	return rows, nil
}
