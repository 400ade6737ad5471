// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy implements the zero-trust command broker: a stateless
// four-gate check (command, path, env, signed-context) reloaded from
// policy.json on every invocation, plus time-bounded trust tokens for
// one-shot signed-context overrides.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// documentValidator checks Document's struct-tag invariants below. A single
// package-level instance is safe for concurrent use.
var documentValidator = validator.New()

// AlwaysAllowedCommands are never blocked by the command gate, regardless of
// allowedCommands, so a misconfigured policy can never lock a caller out of
// discovering what is wrong.
var AlwaysAllowedCommands = map[string]bool{
	"help": true, "--help": true, "-h": true,
	"version": true, "--version": true, "-V": true,
}

// Document is the on-disk policy.json shape (spec §3).
type Document struct {
	AllowedCommands      []string `json:"allowedCommands" validate:"omitempty,dive,required"`
	AllowedGlobs         []string `json:"allowedGlobs" validate:"omitempty,dive,required"`
	EnvPassthrough       []string `json:"envPassthrough" validate:"omitempty,dive,required"`
	NetworkEgress        bool     `json:"networkEgress"`
	AuditTrail           bool     `json:"auditTrail"`
	RequireSignedContext bool     `json:"requireSignedContext"`
	SignExports          bool     `json:"signExports"`
	ForceSignedExports   bool     `json:"forceSignedExports"`
}

// Default returns a conservative starting policy: every command this tool
// exposes is allowed, every path matches (`**`), no env vars pass through,
// network egress stays denied.
func Default() Document {
	return Document{
		AllowedCommands: []string{
			"init", "status", "vector-status", "health",
			"remember", "recall",
			"index-code", "watch-code", "reindex-file", "reindex-folder", "search-code",
			"digest-cache", "gc",
			"journal", "replay", "receipt-show",
			"policy", "key",
			"export-context", "import-context", "prove-offline",
		},
		AllowedGlobs:   []string{"**"},
		EnvPassthrough: []string{},
		NetworkEgress:  false,
		AuditTrail:     true,
	}
}

// Load reads policy.json from path. A missing file yields Default() rather
// than an error, since policy is reloaded on every invocation and a brand
// new project has none yet.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("policy: read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	if err := documentValidator.Struct(doc); err != nil {
		return Document{}, fmt.Errorf("InputInvalid: %s: blank entry in allowedCommands/allowedGlobs/envPassthrough: %w", path, err)
	}
	return doc, nil
}

// Save writes the document via write-temp-then-rename, the atomic-write
// pattern spec §5 requires for policy and keyring mutations.
func Save(path string, doc Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("policy: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("policy: create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("policy: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("policy: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// AllowCommand appends a command to the allowlist if not already present.
func (d *Document) AllowCommand(cmd string) {
	if cmd == "" || containsString(d.AllowedCommands, cmd) {
		return
	}
	d.AllowedCommands = append(d.AllowedCommands, cmd)
}

// AllowPath appends a glob to allowedGlobs if not already present. Order is
// preserved since allowedGlobs is documented as an ordered list (spec §3),
// though matching itself does not depend on order.
func (d *Document) AllowPath(glob string) {
	if glob == "" || containsString(d.AllowedGlobs, glob) {
		return
	}
	d.AllowedGlobs = append(d.AllowedGlobs, glob)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// TrustToken is a short-lived, one-shot override for the signed-context gate
// (spec §3, §4.9). It is consumed on first successful use.
type TrustToken struct {
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token is no longer usable at t.
func (t TrustToken) Expired(t0 time.Time) bool {
	return !t0.Before(t.ExpiresAt)
}

// NewTrustToken mints a token for command valid for the given duration.
func NewTrustToken(command string, ttl time.Duration, now time.Time) TrustToken {
	return TrustToken{Command: command, ExpiresAt: now.Add(ttl)}
}

// LoadTrustTokens reads the outstanding trust tokens from path. A missing
// file yields an empty slice: a project that has never run `policy trust`
// has none yet.
func LoadTrustTokens(path string) ([]TrustToken, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	var tokens []TrustToken
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	return tokens, nil
}

// SaveTrustTokens writes tokens via write-temp-then-rename.
func SaveTrustTokens(path string, tokens []TrustToken) error {
	raw, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("policy: marshal trust tokens: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("policy: create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("policy: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("policy: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}
