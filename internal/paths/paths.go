// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package paths owns the canonical on-disk layout of a securamem project:
// the `.securamem/` data directory, its subpaths, and read-through migration
// from the legacy `.antigoldfishmode/` directory.
package paths

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// CanonicalDirName is the current data directory name.
	CanonicalDirName = ".securamem"
	// LegacyDirName is read-through and migrated from, never written to.
	LegacyDirName = ".antigoldfishmode"

	// RedactedOutsideRoot replaces any path outside the project root before
	// it is written into a receipt.
	RedactedOutsideRoot = "<redacted:outside-root>"
)

// Layout resolves every on-disk path for one project root.
type Layout struct {
	root      string // absolute project root
	canonical string // absolute <root>/.securamem
	legacy    string // absolute <root>/.antigoldfishmode
}

// New resolves a Layout for the given project root. root need not exist yet.
func New(root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("paths: resolve project root: %w", err)
	}
	return &Layout{
		root:      abs,
		canonical: filepath.Join(abs, CanonicalDirName),
		legacy:    filepath.Join(abs, LegacyDirName),
	}, nil
}

// Root is the absolute project root directory.
func (l *Layout) Root() string { return l.root }

// DataDir is the canonical `.securamem` directory (may not exist yet).
func (l *Layout) DataDir() string { return l.canonical }

// LegacyDataDir is the legacy `.antigoldfishmode` directory.
func (l *Layout) LegacyDataDir() string { return l.legacy }

// DBPath is the plaintext SQL database file.
func (l *Layout) DBPath() string { return filepath.Join(l.canonical, "memory.db") }

// DBEncPath is the at-rest encrypted envelope sibling of DBPath.
func (l *Layout) DBEncPath() string { return filepath.Join(l.canonical, "memory.db.enc") }

// ReceiptsDir holds one JSON file per command invocation.
func (l *Layout) ReceiptsDir() string { return filepath.Join(l.canonical, "receipts") }

// ReceiptPath returns the path for a given receipt id.
func (l *Layout) ReceiptPath(id string) string {
	return filepath.Join(l.ReceiptsDir(), id+".json")
}

// JournalPath is the append-only JSONL journal.
func (l *Layout) JournalPath() string { return filepath.Join(l.canonical, "journal.jsonl") }

// PolicyPath is the policy document.
func (l *Layout) PolicyPath() string { return filepath.Join(l.canonical, "policy.json") }

// TrustTokensPath is the mint-on-`policy trust`/consume-on-import JSON list
// of outstanding signed-context trust tokens. Tokens must survive between
// separate CLI invocations even though the Broker itself is rebuilt fresh
// each time, so they live on disk alongside the policy document.
func (l *Layout) TrustTokensPath() string { return filepath.Join(l.canonical, "trust-tokens.json") }

// FileDigestsMirrorPath is a transient JSON mirror of the digest cache table,
// used for quick inspection; the database remains the source of truth.
func (l *Layout) FileDigestsMirrorPath() string {
	return filepath.Join(l.canonical, "file-digests.json")
}

// KeysDir is the keyring root.
func (l *Layout) KeysDir() string { return filepath.Join(l.canonical, "keys") }

// ActiveKeyDir holds the current signing keypair.
func (l *Layout) ActiveKeyDir() string { return filepath.Join(l.KeysDir(), "active") }

// ArchiveKeyDir holds retired public keys, named <keyId>.pub.
func (l *Layout) ArchiveKeyDir() string { return filepath.Join(l.KeysDir(), "archive") }

// EnsureCanonicalDirs creates the canonical directory tree (idempotent).
func (l *Layout) EnsureCanonicalDirs() error {
	dirs := []string{l.canonical, l.ReceiptsDir(), l.KeysDir(), l.ActiveKeyDir(), l.ArchiveKeyDir()}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("paths: create %s: %w", d, err)
		}
	}
	return nil
}

// HasLegacyDir reports whether a legacy `.antigoldfishmode` directory exists.
func (l *Layout) HasLegacyDir() bool {
	info, err := os.Stat(l.legacy)
	return err == nil && info.IsDir()
}

// MigrateLegacy copies any file present under the legacy directory but
// missing under the canonical one. It never overwrites an existing canonical
// file and never deletes anything from the legacy directory (spec §9:
// implementers MUST NOT delete legacy artifacts).
//
// Returns the list of relative paths that were copied.
func (l *Layout) MigrateLegacy() ([]string, error) {
	if !l.HasLegacyDir() {
		return nil, nil
	}
	if err := l.EnsureCanonicalDirs(); err != nil {
		return nil, err
	}

	var copied []string
	err := filepath.Walk(l.legacy, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.legacy, path)
		if err != nil {
			return fmt.Errorf("paths: relativize legacy path %s: %w", path, err)
		}
		dst := filepath.Join(l.canonical, rel)
		if _, err := os.Stat(dst); err == nil {
			return nil // canonical file already present, do not overwrite
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("paths: create dir for %s: %w", dst, err)
		}
		if err := copyFile(path, dst); err != nil {
			return err
		}
		copied = append(copied, ToForwardSlash(rel))
		return nil
	})
	if err != nil {
		return copied, err
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("paths: open legacy file %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("paths: create migrated file %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("paths: copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// ToForwardSlash normalizes a path for cross-platform-stable storage/display.
func ToForwardSlash(p string) string {
	return filepath.ToSlash(p)
}

// RelativeToRoot converts an absolute path to a forward-slash path relative
// to the project root. If the path falls outside the root, it returns
// RedactedOutsideRoot and ok=false.
func (l *Layout) RelativeToRoot(absPath string) (rel string, ok bool) {
	abs, err := filepath.Abs(absPath)
	if err != nil {
		return RedactedOutsideRoot, false
	}
	r, err := filepath.Rel(l.root, abs)
	if err != nil || strings.HasPrefix(r, "..") {
		return RedactedOutsideRoot, false
	}
	return ToForwardSlash(r), true
}

// RedactForReceipt is the helper receipts use to redact any path argument
// that falls outside the project root before serialization.
func (l *Layout) RedactForReceipt(p string) string {
	if p == "" {
		return p
	}
	if filepath.IsAbs(p) {
		rel, ok := l.RelativeToRoot(p)
		if !ok {
			return RedactedOutsideRoot
		}
		return rel
	}
	// Relative paths are assumed project-relative already; normalize slashes
	// and reject any that climb above the root via "..".
	norm := ToForwardSlash(filepath.Clean(p))
	if strings.HasPrefix(norm, "../") || norm == ".." {
		return RedactedOutsideRoot
	}
	return norm
}
