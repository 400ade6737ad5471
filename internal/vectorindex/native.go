// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// NativeANN is backed by a SQL-extension ANN virtual table (the sqlite-vec
// extension, grounded on the other_examples "codenerd" local store's
// detectVecExtension probe). It converts the extension's distance metric `d`
// to a score via s = 1/(1+d), per spec §4.4.
//
// modernc.org/sqlite is pure Go and does not support loading native C
// extensions. Init looks up a table named vec_memories in sqlite_master and
// fails with ErrBackendUnavailable when there is none, letting Select fall
// back to InProcessCosine; nothing in this repository creates that table. This materializes the "native-extension ANN if available"
// contract honestly rather than faking availability.
type NativeANN struct {
	db  *sql.DB
	dim int
}

// NewNativeANN builds a NativeANN backend over an already-open database
// connection (shared with the Storage Engine, per spec §3 "Vector Index
// shares the DB connection when backed by an extension").
func NewNativeANN(db *sql.DB) *NativeANN {
	return &NativeANN{db: db}
}

// vecTableProbe is the ANN table Init looks for and Add/Remove/Query use.
const vecTableProbe = `vec_memories`

func (n *NativeANN) Init(ctx context.Context) error {
	var name string
	err := n.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, vecTableProbe).Scan(&name)
	if err == sql.ErrNoRows {
		return ErrBackendUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: probe failed: %v", ErrBackendUnavailable, err)
	}
	row := n.db.QueryRowContext(ctx, `SELECT dim FROM memory_vectors LIMIT 1`)
	var dim sql.NullInt64
	if err := row.Scan(&dim); err == nil {
		n.dim = int(dim.Int64)
	}
	return nil
}

func (n *NativeANN) Add(ctx context.Context, id int64, vec []float32) error {
	if n.dim != 0 && n.dim != len(vec) {
		return fmt.Errorf("InputInvalid: vector dim %d does not match index dim %d", len(vec), n.dim)
	}
	_, err := n.db.ExecContext(ctx,
		`INSERT INTO `+vecTableProbe+`(rowid, embedding) VALUES (?, ?)
		 ON CONFLICT(rowid) DO UPDATE SET embedding=excluded.embedding`,
		id, encodeFloat32(vec))
	if err != nil {
		return fmt.Errorf("vectorindex: native add: %w", err)
	}
	if n.dim == 0 {
		n.dim = len(vec)
	}
	return nil
}

func (n *NativeANN) Remove(ctx context.Context, id int64) error {
	_, err := n.db.ExecContext(ctx, `DELETE FROM `+vecTableProbe+` WHERE rowid=?`, id)
	if err != nil {
		return fmt.Errorf("vectorindex: native remove: %w", err)
	}
	return nil
}

func (n *NativeANN) Query(ctx context.Context, vec []float32, opts QueryOptions) ([]Match, error) {
	k := opts.K
	if k <= 0 {
		k = 10
	}
	rows, err := n.db.QueryContext(ctx,
		`SELECT rowid, distance FROM `+vecTableProbe+` WHERE embedding MATCH ? ORDER BY distance LIMIT ?`,
		encodeFloat32(vec), k)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: native query: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var id int64
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, fmt.Errorf("vectorindex: scan native match: %w", err)
		}
		score := 1.0 / (1.0 + dist)
		if score < opts.Threshold {
			continue
		}
		out = append(out, Match{ID: id, Score: score})
	}
	return out, rows.Err()
}

func (n *NativeANN) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := n.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+vecTableProbe).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("vectorindex: native stats: %w", err)
	}
	return Stats{Backend: string(BackendNativeANN), Dim: n.dim, Count: count}, nil
}

func (n *NativeANN) Dimensions() int { return n.dim }

func encodeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
