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
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector serializes a float32 vector as little-endian bytes, the wire
// form used both in memory_vectors.vector and in .smemctx's vectors.f32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector parses little-endian float32 bytes back into a vector.
func DecodeVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return v
}

// projectDim returns the dimension already committed for this project, or 0
// if no vector has been stored yet.
func (e *Engine) projectDim(ctx context.Context) (int, error) {
	var dim sql.NullInt64
	err := e.db.QueryRowContext(ctx, `SELECT dim FROM memory_vectors LIMIT 1`).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: read project dim: %w", err)
	}
	return int(dim.Int64), nil
}

// UpsertVector writes (or replaces) the vector for a memory id. Dim must
// match the project-wide dimension once one has been committed (spec §3).
func (e *Engine) UpsertVector(ctx context.Context, id int64, vec []float32) error {
	dim, err := e.projectDim(ctx)
	if err != nil {
		return err
	}
	if dim != 0 && dim != len(vec) {
		return fmt.Errorf("InputInvalid: vector dim %d does not match project dim %d", len(vec), dim)
	}
	_, err = e.db.ExecContext(ctx,
		`INSERT INTO memory_vectors(id, dim, vector) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dim=excluded.dim, vector=excluded.vector`,
		id, len(vec), EncodeVector(vec))
	if err != nil {
		return fmt.Errorf("storage: upsert vector: %w", err)
	}
	return nil
}

// GetVectors fetches vectors for the given memory ids, keyed by id. Ids with
// no stored vector are simply absent from the result (spec §5: Hybrid Search
// must tolerate missing vectors).
func (e *Engine) GetVectors(ctx context.Context, ids []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	rows, err := e.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, vector FROM memory_vectors WHERE id IN (%s)`, string(placeholders)), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: get vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("storage: scan vector row: %w", err)
		}
		out[id] = DecodeVector(raw)
	}
	return out, rows.Err()
}

// AllVectors streams every stored vector, used by the in-process cosine
// backend to build its full index.
func (e *Engine) AllVectors(ctx context.Context) (map[int64][]float32, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT id, vector FROM memory_vectors`)
	if err != nil {
		return nil, fmt.Errorf("storage: list all vectors: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]float32)
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("storage: scan vector row: %w", err)
		}
		out[id] = DecodeVector(raw)
	}
	return out, rows.Err()
}
