// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"fmt"
	"path/filepath"
	"time"
)

// Blocker names a gate that rejected a request, mirroring the
// blockedBy/sentinel pairing the egress guard's preFlightChecks uses.
type Blocker string

const (
	BlockerNone      Blocker = ""
	BlockerCommand   Blocker = "command"
	BlockerPath      Blocker = "path"
	BlockerSignature Blocker = "signature"
	BlockerChecksum  Blocker = "checksum"
)

// ExitCode maps a blocker to the process exit code spec §4.9 requires.
// Checksum mismatch takes precedence over signature failure when both would
// apply (spec §4.9: "takes precedence over signature failure").
func (b Blocker) ExitCode() int {
	switch b {
	case BlockerCommand, BlockerPath:
		return 2
	case BlockerSignature:
		return 3
	case BlockerChecksum:
		return 4
	default:
		return 0
	}
}

// Decision is the outcome of a broker Check: which gate (if any) blocked the
// request, and why.
type Decision struct {
	Blocked bool
	Blocker Blocker
	Reason  string
}

func allow() Decision { return Decision{} }

func deny(b Blocker, reason string) Decision {
	return Decision{Blocked: true, Blocker: b, Reason: reason}
}

// Request describes one side-effecting command invocation awaiting a policy
// decision.
type Request struct {
	Command string
	// Paths are every filesystem path argument the command reads or writes.
	Paths []string
	// RequiresSignedContext is true for import-context calls; the context
	// gate only applies to those.
	RequiresSignedContext bool
	// HasValidSignature reports whether the bundle being imported already
	// carried a valid detached signature from a trusted key.
	HasValidSignature bool
	// OneShotOverride is the caller's explicit flag requesting to bypass the
	// missing/invalid signature requirement for this one call.
	OneShotOverride bool
}

// Broker evaluates requests against a Document and an in-memory set of
// trust tokens. It holds no other state: the document is reloaded by the
// caller on every invocation per spec §4.9 ("stateless over a policy.json
// document loaded at each invocation").
type Broker struct {
	Doc    Document
	Tokens []TrustToken
	Now    func() time.Time
}

// New builds a Broker over doc. now defaults to time.Now.
func New(doc Document) *Broker {
	return &Broker{Doc: doc, Now: time.Now}
}

func (b *Broker) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// Check runs all four gates in spec order (command, path, env is advisory —
// see FilterEnv — context) and returns the first failure, or an allow
// decision if every gate passes.
func (b *Broker) Check(req Request) Decision {
	if d := b.checkCommand(req.Command); d.Blocked {
		return d
	}
	if d := b.checkPaths(req.Paths); d.Blocked {
		return d
	}
	if d := b.checkContext(req); d.Blocked {
		return d
	}
	return allow()
}

// checkCommand is gate 1: the command string must be in allowedCommands,
// with help/version variants always allowed.
func (b *Broker) checkCommand(cmd string) Decision {
	if AlwaysAllowedCommands[cmd] {
		return allow()
	}
	for _, c := range b.Doc.AllowedCommands {
		if c == cmd {
			return allow()
		}
	}
	return deny(BlockerCommand, fmt.Sprintf("command %q is not in allowedCommands", cmd))
}

// checkPaths is gate 2: every path argument must match some allowedGlobs
// entry. Globs support "**" (any depth) in addition to filepath.Match's
// single-segment wildcards.
func (b *Broker) checkPaths(paths []string) Decision {
	for _, p := range paths {
		if !matchesAny(p, b.Doc.AllowedGlobs) {
			return deny(BlockerPath, fmt.Sprintf("path %q does not match any allowedGlobs entry", p))
		}
	}
	return allow()
}

// checkContext is gate 4: if requireSignedContext is set and the request
// needs it, a missing/invalid signature is only tolerated with an explicit
// one-shot override backed by a live, unexpired trust token for this
// command.
func (b *Broker) checkContext(req Request) Decision {
	if !req.RequiresSignedContext || !b.Doc.RequireSignedContext {
		return allow()
	}
	if req.HasValidSignature {
		return allow()
	}
	if !req.OneShotOverride {
		return deny(BlockerSignature, "signed context required but bundle has no valid signature")
	}
	if !b.hasLiveToken(req.Command) {
		return deny(BlockerSignature, "signature override requested but no matching unexpired trust token")
	}
	return allow()
}

func (b *Broker) hasLiveToken(command string) bool {
	now := b.now()
	for _, t := range b.Tokens {
		if t.Command == command && !t.Expired(now) {
			return true
		}
	}
	return false
}

// FilterEnv is gate 3: only names present in envPassthrough survive;
// everything else is scrubbed before the core command sees the environment.
func (b *Broker) FilterEnv(env map[string]string) map[string]string {
	allowed := make(map[string]bool, len(b.Doc.EnvPassthrough))
	for _, name := range b.Doc.EnvPassthrough {
		allowed[name] = true
	}
	out := make(map[string]string)
	for k, v := range env {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}

// ConsumeToken removes the first live token for command, if any, enforcing
// that a trust token is one-shot.
func (b *Broker) ConsumeToken(command string) bool {
	now := b.now()
	for i, t := range b.Tokens {
		if t.Command == command && !t.Expired(now) {
			b.Tokens = append(b.Tokens[:i], b.Tokens[i+1:]...)
			return true
		}
	}
	return false
}

// ShouldSignExport reports whether an export must be signed regardless of
// the caller's --sign/--no-sign flag (spec §4.9:
// "forceSignedExports=true overrides any --no-sign caller flag").
func (b *Broker) ShouldSignExport(callerRequestedSign bool) bool {
	if b.Doc.ForceSignedExports {
		return true
	}
	if b.Doc.SignExports {
		return true
	}
	return callerRequestedSign
}

func matchesAny(path string, globs []string) bool {
	for _, g := range globs {
		if globMatch(g, path) {
			return true
		}
	}
	return false
}

// globMatch supports "**" as a recursive wildcard, mirroring
// codeindex.Walk's matcher since filepath.Match has no such support.
func globMatch(pattern, path string) bool {
	return matchParts(splitSlash(filepath.ToSlash(pattern)), splitSlash(filepath.ToSlash(path)))
}

func splitSlash(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func matchParts(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(path); i++ {
			if matchParts(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchParts(pattern[1:], path[1:])
}
