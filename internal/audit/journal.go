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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JournalEntry is one append-only line in journal.jsonl (spec §3).
type JournalEntry struct {
	Ts      time.Time `json:"ts"`
	Cmd     string    `json:"cmd"`
	Args    []string  `json:"args,omitempty"`
	Error   string    `json:"error,omitempty"`
	Receipt string    `json:"receipt"`
}

// AppendJournal appends one entry to journalPath, fsyncing before returning
// so that readers of the journal can assume any referenced receipt already
// exists and is durable (spec §5: "Journal append happens after the receipt
// file is fsynced").
func AppendJournal(journalPath string, entry JournalEntry) error {
	f, err := os.OpenFile(journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open journal: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal journal entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("audit: write journal entry: %w", err)
	}
	return f.Sync()
}

// ReadJournal loads every entry from journalPath in file order. A missing
// file yields an empty, non-nil slice rather than an error, since a brand
// new project has not journaled anything yet.
func ReadJournal(journalPath string) ([]JournalEntry, error) {
	f, err := os.Open(journalPath)
	if os.IsNotExist(err) {
		return []JournalEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open journal: %w", err)
	}
	defer f.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("audit: parse journal line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan journal: %w", err)
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	return entries, nil
}

// ClearJournal truncates the journal file, used by `journal --clear`.
func ClearJournal(journalPath string) error {
	if err := os.Truncate(journalPath, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("audit: clear journal: %w", err)
	}
	return nil
}
