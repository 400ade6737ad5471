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
	"fmt"
	"time"
)

// FileDigestEntry is one row of the file_digests cache.
type FileDigestEntry struct {
	File      string
	Digest    string
	UpdatedAt time.Time
}

// GetFileDigest returns the cached digest for a file, or ok=false if absent.
func (e *Engine) GetFileDigest(ctx context.Context, file string) (digest string, ok bool, err error) {
	err = e.db.QueryRowContext(ctx, `SELECT digest FROM file_digests WHERE file=?`, file).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: get file digest: %w", err)
	}
	return digest, true, nil
}

// SetFileDigest upserts the digest for a file (exactly one row per path,
// spec §3).
func (e *Engine) SetFileDigest(ctx context.Context, file, digest string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO file_digests(file, digest, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(file) DO UPDATE SET digest=excluded.digest, updated_at=excluded.updated_at`,
		file, digest, now)
	if err != nil {
		return fmt.Errorf("storage: set file digest: %w", err)
	}
	return nil
}

// DeleteFileDigest removes the digest row for one file.
func (e *Engine) DeleteFileDigest(ctx context.Context, file string) error {
	if _, err := e.db.ExecContext(ctx, `DELETE FROM file_digests WHERE file=?`, file); err != nil {
		return fmt.Errorf("storage: delete file digest: %w", err)
	}
	return nil
}

// MoveFileDigest renames a digest row in place (used by rename detection),
// preserving the digest value and refreshing updated_at.
func (e *Engine) MoveFileDigest(ctx context.Context, oldFile, newFile string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := e.db.ExecContext(ctx,
		`UPDATE file_digests SET file=?, updated_at=? WHERE file=?`, newFile, now, oldFile)
	if err != nil {
		return fmt.Errorf("storage: move file digest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("NotFound: no digest row for %s", oldFile)
	}
	return nil
}

// ClearFileDigests deletes every digest row.
func (e *Engine) ClearFileDigests(ctx context.Context) (int64, error) {
	res, err := e.db.ExecContext(ctx, `DELETE FROM file_digests`)
	if err != nil {
		return 0, fmt.Errorf("storage: clear file digests: %w", err)
	}
	return res.RowsAffected()
}

// ListFileDigests returns up to limit digest rows (0 = unbounded), ordered by
// most recently updated first.
func (e *Engine) ListFileDigests(ctx context.Context, limit int) ([]FileDigestEntry, error) {
	q := `SELECT file, digest, updated_at FROM file_digests ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list file digests: %w", err)
	}
	defer rows.Close()

	var out []FileDigestEntry
	for rows.Next() {
		var entry FileDigestEntry
		var updated string
		if err := rows.Scan(&entry.File, &entry.Digest, &updated); err != nil {
			return nil, fmt.Errorf("storage: scan file digest row: %w", err)
		}
		entry.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// CountFileDigests counts all digest rows.
func (e *Engine) CountFileDigests(ctx context.Context) (int64, error) {
	var n int64
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_digests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count file digests: %w", err)
	}
	return n, nil
}

// DropStaleDigests removes digest rows whose file is reported missing by the
// caller (the storage layer has no filesystem access of its own; the
// indexing/health layer supplies the list after stat'ing each path).
func (e *Engine) DropStaleDigests(ctx context.Context, staleFiles []string) (int64, error) {
	var total int64
	for _, f := range staleFiles {
		res, err := e.db.ExecContext(ctx, `DELETE FROM file_digests WHERE file=?`, f)
		if err != nil {
			return total, fmt.Errorf("storage: drop stale digest %s: %w", f, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
