// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/securamem/smem/internal/metadata"
	"github.com/securamem/smem/internal/storage"
)

// Blocker mirrors policy.Blocker's values without importing the policy
// package, avoiding a dependency cycle (policy never needs to know about
// bundles, but both need this vocabulary for CLI exit-code mapping).
type Blocker string

const (
	BlockerNone      Blocker = ""
	BlockerChecksum  Blocker = "checksum"
	BlockerSignature Blocker = "signature"
)

// ImportOptions configures Import.
type ImportOptions struct {
	InPath        string
	AllowUnsigned bool // caller passed --allow-unsigned
	RequireSigned bool // policy.requireSignedContext
}

// ImportResult summarizes a completed import.
type ImportResult struct {
	Type             BundleType
	MemoriesIn       int
	VectorsIn        int
	Legacy           bool
	SignedOK         bool
	SignaturePresent bool
}

// ImportError carries the Blocker that should map to an exit code, so the
// CLI layer can call policy.Blocker(err.Blocker).ExitCode() without this
// package importing policy.
type ImportError struct {
	Blocker Blocker
	Reason  string
}

func (e *ImportError) Error() string { return fmt.Sprintf("bundle: %s: %s", e.Blocker, e.Reason) }

// Import verifies and ingests a .smemctx (or legacy .agmctx) bundle into
// storage. Verification order per spec §4.11: checksums first, then
// signature if required; an unknown schemaVersion fails closed after both.
func Import(ctx context.Context, eng *storage.Engine, opts ImportOptions) (result ImportResult, err error) {
	ctx, span := bundleTracer.Start(ctx, "bundle.Import",
		trace.WithAttributes(
			attribute.Bool("bundle.allow_unsigned", opts.AllowUnsigned),
			attribute.Bool("bundle.require_signed", opts.RequireSigned),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	dir := opts.InPath
	legacy := isLegacyPath(opts.InPath)

	if isZipFile(opts.InPath) {
		tmp, err := os.MkdirTemp("", "smemctx-import-*")
		if err != nil {
			return ImportResult{}, fmt.Errorf("bundle: create extract dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		if err := unzipDir(opts.InPath, tmp); err != nil {
			return ImportResult{}, err
		}
		dir = tmp
	}

	if !legacy {
		ok, err := verifyChecksums(dir)
		if err != nil {
			return ImportResult{}, fmt.Errorf("bundle: %w", err)
		}
		if !ok {
			return ImportResult{}, &ImportError{Blocker: BlockerChecksum, Reason: "checksums.json does not match bundle contents"}
		}
	}

	present, valid, err := verifySignature(dir)
	if err != nil {
		return ImportResult{}, fmt.Errorf("bundle: %w", err)
	}
	signedOK := present && valid
	if opts.RequireSigned && !legacy {
		if !present && !opts.AllowUnsigned {
			return ImportResult{}, &ImportError{Blocker: BlockerSignature, Reason: "signed context required but bundle has no signature"}
		}
		if present && !valid {
			return ImportResult{}, &ImportError{Blocker: BlockerSignature, Reason: "signature present but invalid"}
		}
	}

	manifest, manifestErr := readManifest(dir)
	if manifestErr != nil {
		if !legacy {
			return ImportResult{}, fmt.Errorf("bundle: %w", manifestErr)
		}
		// Legacy bundles may lack a schemaVersion stamp entirely; proceed
		// with the type implied by whichever files are present.
		manifest = Manifest{SchemaVersion: SchemaVersion, Type: TypeMixed}
	}

	rows, err := readChunkMap(dir)
	if err != nil {
		return ImportResult{}, fmt.Errorf("bundle: %w", err)
	}
	vecs, err := readVectorBlob(dir, manifest.Vectors.Count, manifest.Vectors.Dim)
	if err != nil {
		return ImportResult{}, fmt.Errorf("bundle: %w", err)
	}
	notes, err := readNotes(dir)
	if err != nil {
		return ImportResult{}, fmt.Errorf("bundle: %w", err)
	}

	memsIn := 0
	vecsIn := 0
	for i, row := range rows {
		meta := metadata.NewCode(metadata.CodeChunkMeta{
			File:       row.File,
			Language:   row.Lang,
			LineStart:  row.LineStart,
			LineEnd:    row.LineEnd,
			ContentSha: row.ChunkSha256,
			Symbol:     row.Symbol,
			SymbolType: row.Type,
		})
		metaJSON, err := metadata.MarshalForStorage(meta)
		if err != nil {
			continue
		}
		id, err := eng.StoreMemory(ctx, storage.StoreMemoryParams{
			Content:      fmt.Sprintf("%s:%d-%d", row.File, row.LineStart, row.LineEnd),
			Context:      "imported",
			Type:         "code",
			MetadataJSON: metaJSON,
		})
		if err != nil {
			continue
		}
		memsIn++
		if i < len(vecs) && len(vecs[i]) > 0 {
			if err := eng.UpsertVector(ctx, id, vecs[i]); err == nil {
				vecsIn++
			}
		}
	}

	for _, n := range notes {
		metaJSON := ""
		if len(n.Metadata) > 0 {
			metaJSON = string(n.Metadata)
		}
		if _, err := eng.StoreMemory(ctx, storage.StoreMemoryParams{
			Content:      n.Content,
			Context:      n.Context,
			Type:         n.Type,
			Tags:         n.Tags,
			MetadataJSON: metaJSON,
		}); err == nil {
			memsIn++
		}
	}

	return ImportResult{
		Type:             manifest.Type,
		MemoriesIn:       memsIn,
		VectorsIn:        vecsIn,
		Legacy:           legacy,
		SignedOK:         signedOK,
		SignaturePresent: present,
	}, nil
}

// isLegacyPath recognizes the retired .agmctx bundle naming.
func isLegacyPath(path string) bool {
	trimmed := strings.TrimSuffix(filepath.Clean(path), string(filepath.Separator))
	return strings.HasSuffix(trimmed, ".agmctx")
}

