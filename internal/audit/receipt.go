// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit writes the per-command Receipt and append-only journal that
// together let every side-effecting invocation be inspected and replayed,
// mirroring the egress package's audit-trail style with slog structured
// logging plus durable on-disk artifacts.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ReceiptSchema is the current receipt schema version (spec §3: schema="v1").
const ReceiptSchema = "v1"

// Receipt is the immutable-once-written record of one command invocation.
// Field order matches spec §3's listing so the marshaled JSON is stable and
// reviewable key-by-key.
type Receipt struct {
	Schema        string            `json:"schema"`
	Version       int               `json:"version"`
	ID            string            `json:"id"`
	Command       string            `json:"command"`
	Argv          []string          `json:"argv"`
	Cwd           string            `json:"cwd"`
	StartTime     time.Time         `json:"startTime"`
	EndTime       time.Time         `json:"endTime"`
	Params        map[string]any    `json:"params,omitempty"`
	ResultSummary string            `json:"resultSummary,omitempty"`
	Results       any               `json:"results,omitempty"`
	Success       bool              `json:"success"`
	ExitCode      *int              `json:"exitCode,omitempty"`
	Error         string            `json:"error,omitempty"`
	Digests       map[string]string `json:"digests,omitempty"`
}

// NewID mints a timestamped-random receipt id: a sortable UTC timestamp
// prefix plus a random UUIDv4 suffix, so ids sort chronologically while
// staying collision-free under concurrent commands.
func NewID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405.000000000Z"), uuid.NewString())
}

// DigestArgs computes the argsSha256 digest spec §3 stores under
// digests.argsSha256: SHA-256 over the command plus its argv, joined by NUL
// bytes so no argument can be confused with a separator.
func DigestArgs(command string, argv []string) string {
	h := sha256.New()
	h.Write([]byte(command))
	for _, a := range argv {
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Write persists the receipt under receiptsDir/<id>.json. Receipts are
// immutable once written: Write refuses to overwrite an existing file for
// the same id.
func (r Receipt) Write(receiptsDir string) (string, error) {
	if r.ID == "" {
		return "", fmt.Errorf("audit: receipt has no id")
	}
	if err := os.MkdirAll(receiptsDir, 0o755); err != nil {
		return "", fmt.Errorf("audit: create receipts dir: %w", err)
	}
	path := filepath.Join(receiptsDir, r.ID+".json")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("audit: receipt %s already exists, refusing to overwrite", r.ID)
	}

	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal receipt: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("audit: write receipt: %w", err)
	}
	_, err = f.Write(raw)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("audit: write receipt: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("audit: rename receipt into place: %w", err)
	}
	return path, nil
}

// ReadReceipt loads a receipt JSON file back into memory.
func ReadReceipt(path string) (Receipt, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Receipt{}, fmt.Errorf("audit: read receipt %s: %w", path, err)
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return Receipt{}, fmt.Errorf("audit: parse receipt %s: %w", path, err)
	}
	return r, nil
}
