// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NonReplayableCommands names commands replay MUST skip even if a past
// journal entry references them (spec §4.10: "journal and replay themselves
// are non-replayable").
var NonReplayableCommands = map[string]bool{
	"journal": true,
	"replay":  true,
}

// Selector narrows which journal entries a replay run targets.
type Selector struct {
	Last  int    // replay the last N entries; 0 means unset
	ID    string // replay exactly the entry whose receipt id matches
	Range int    // replay the last N entries (alias accepted by the CLI for --range)
}

// Select returns the journal entries a Selector picks out, in journal
// order, skipping non-replayable commands.
func Select(entries []JournalEntry, sel Selector) []JournalEntry {
	var filtered []JournalEntry
	for _, e := range entries {
		if !NonReplayableCommands[e.Cmd] {
			filtered = append(filtered, e)
		}
	}

	if sel.ID != "" {
		for _, e := range filtered {
			if e.Receipt == sel.ID || receiptIDFromPath(e.Receipt) == sel.ID {
				return []JournalEntry{e}
			}
		}
		return nil
	}

	n := sel.Last
	if n == 0 {
		n = sel.Range
	}
	if n <= 0 || n >= len(filtered) {
		return filtered
	}
	return filtered[len(filtered)-n:]
}

func receiptIDFromPath(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			base = path[i+1:]
			break
		}
	}
	const ext = ".json"
	if len(base) > len(ext) && base[len(base)-len(ext):] == ext {
		return base[:len(base)-len(ext)]
	}
	return base
}

// Executor re-runs one previously journaled command. dryRun is forced true
// unless the caller passed --execute (spec §4.10). Implemented by the CLI
// layer, which is the only place that knows how to dispatch a command by
// name; this package only knows how to select and digest a batch.
type Executor interface {
	Execute(entry JournalEntry, dryRun bool) error
}

// Plan is the outcome of running Select plus DigestBatch, ready to execute
// and to serialize into the replay command's own receipt.
type Plan struct {
	Entries     []JournalEntry
	BatchSha256 string
	DryRun      bool
}

// BuildPlan selects entries per sel and computes the SHA-256 digest-of-ids
// spec §4.10 requires ("Digest the batch of replayed receipt ids with
// SHA-256 and include it in the replay receipt").
func BuildPlan(entries []JournalEntry, sel Selector, execute bool) Plan {
	selected := Select(entries, sel)
	return Plan{
		Entries:     selected,
		BatchSha256: DigestBatch(selected),
		DryRun:      !execute,
	}
}

// DigestBatch computes SHA-256 over the receipt ids in entries, in entry
// order, each followed by a NUL byte.
func DigestBatch(entries []JournalEntry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(receiptIDFromPath(e.Receipt)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run executes every entry in the plan via exec, stopping at the first
// error and returning it wrapped with the offending entry's command name.
func (p Plan) Run(exec Executor) error {
	for _, e := range p.Entries {
		if err := exec.Execute(e, p.DryRun); err != nil {
			return fmt.Errorf("audit: replay %s: %w", e.Cmd, err)
		}
	}
	return nil
}
