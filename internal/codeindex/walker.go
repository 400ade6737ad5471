// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codeindex

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// walkOptionsValidator checks WalkOptions' glob invariants below. A single
// package-level instance is safe for concurrent use.
var walkOptionsValidator = validator.New()

// DefaultExcludeGlobs are skipped unless the caller overrides them. These
// mirror the vendor/build/cache directories that show up across every
// ecosystem this tool is likely to index, plus the tool's own data dirs so a
// `.securamem` checkout never indexes itself.
var DefaultExcludeGlobs = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/.next/**",
	"**/.cache/**",
	"**/vendor/**",
	"**/.securamem/**",
	"**/.antigoldfishmode/**",
}

// WalkOptions narrows which files Walk visits.
type WalkOptions struct {
	// IncludeGlobs, if non-empty, restricts results to matching paths
	// (relative to root, forward-slash separated). Empty means "all files".
	IncludeGlobs []string
	// ExcludeGlobs is appended to DefaultExcludeGlobs unless
	// DisableDefaultExcludes is set.
	ExcludeGlobs           []string
	DisableDefaultExcludes bool
	MaxFileBytes           int64 // 0 means no limit
}

// validatedGlobs mirrors WalkOptions' glob fields for struct-tag validation:
// the slices themselves may be empty (meaning "no filter"), but any glob
// entry they do contain must be a non-empty string.
type validatedGlobs struct {
	IncludeGlobs []string `validate:"omitempty,dive,required"`
	ExcludeGlobs []string `validate:"omitempty,dive,required"`
}

// validate rejects a blank glob entry as InputInvalid before any traversal
// begins; a blank include/exclude glob would otherwise match every path
// exactly like "**" well past what a caller typing an empty --include
// flag value intended.
func (o WalkOptions) validate() error {
	if err := walkOptionsValidator.Struct(validatedGlobs{IncludeGlobs: o.IncludeGlobs, ExcludeGlobs: o.ExcludeGlobs}); err != nil {
		return fmt.Errorf("InputInvalid: include/exclude globs must be non-empty: %w", err)
	}
	return nil
}

// FileEntry is one file Walk accepted.
type FileEntry struct {
	AbsPath string
	RelPath string // forward-slash, relative to root
	Size    int64
}

// Walk visits every regular file under root passing the include/exclude
// filters, calling visit for each. Directory traversal itself is pruned for
// excluded directories so large vendor trees are never descended into.
func Walk(root string, opts WalkOptions, visit func(FileEntry) error) error {
	if err := opts.validate(); err != nil {
		return err
	}

	excludes := opts.ExcludeGlobs
	if !opts.DisableDefaultExcludes {
		excludes = append(append([]string{}, DefaultExcludeGlobs...), excludes...)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if matchesAny(rel+"/", excludes) {
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAny(rel, excludes) {
			return nil
		}
		if len(opts.IncludeGlobs) > 0 && !matchesAny(rel, opts.IncludeGlobs) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if opts.MaxFileBytes > 0 && info.Size() > opts.MaxFileBytes {
			return nil
		}

		return visit(FileEntry{AbsPath: path, RelPath: rel, Size: info.Size()})
	})
}

// ShouldSkipDir reports whether the directory at relPath (forward-slash,
// relative to the walk root) should be pruned under the given excludes,
// using the same matching DefaultExcludeGlobs-aware rules Walk itself
// applies. Exposed so callers that need their own traversal (the
// filesystem watcher, which must register directories with the OS watcher
// one at a time) can still honor the standard exclude set.
func ShouldSkipDir(relPath string, excludeGlobs []string, disableDefaultExcludes bool) bool {
	excludes := excludeGlobs
	if !disableDefaultExcludes {
		excludes = append(append([]string{}, DefaultExcludeGlobs...), excludeGlobs...)
	}
	if relPath == "." || relPath == "" {
		return false
	}
	return matchesAny(relPath+"/", excludes)
}

func matchesAny(relPath string, globs []string) bool {
	for _, g := range globs {
		if globMatch(g, relPath) {
			return true
		}
	}
	return false
}

// globMatch supports the "**" (any depth) segment in addition to
// filepath.Match's single-segment wildcards, since Go's stdlib glob has no
// recursive-wildcard support.
func globMatch(pattern, path string) bool {
	pParts := splitSlash(pattern)
	sParts := splitSlash(path)
	return matchParts(pParts, sParts)
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

// LanguageForPath returns a language identifier from a file extension, or
// "" if the extension is not recognized. This drives chunker selection.
func LanguageForPath(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	default:
		return ""
	}
}

// ErrUnsupportedLanguage is returned by chunkers asked to handle a language
// they have no rule for.
var ErrUnsupportedLanguage = fmt.Errorf("UnsupportedLanguage: no chunker registered for this language")
