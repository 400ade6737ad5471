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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/securamem/smem/internal/cryptostore"
	"github.com/securamem/smem/internal/metadata"
	"github.com/securamem/smem/internal/storage"
	"github.com/securamem/smem/internal/telemetry"
)

// bundleTracer is the shared otel tracer for Export/Import spans.
var bundleTracer = telemetry.Tracer()

// ExportOptions configures Export.
type ExportOptions struct {
	OutPath string     // directory or, if Zip is true, the .smemctx zip file path
	Type    BundleType // TypeCode, TypeNotes, or TypeMixed
	Zip     bool
	Sign    bool // caller's request; a policy broker may force this regardless
	KeyRing *cryptostore.KeyRing
}

// ExportResult summarizes a completed export for a receipt's resultSummary.
type ExportResult struct {
	Path    string
	Type    BundleType
	Count   int
	Vectors VectorInfo
	Signed  bool
	KeyID   string
}

// Export assembles a .smemctx bundle from storage at opts.OutPath. Files are
// written atomically as a set: everything lands in a temp directory and is
// only renamed/zipped into place once assembly succeeds.
func Export(ctx context.Context, eng *storage.Engine, opts ExportOptions) (result ExportResult, err error) {
	if opts.Type == "" {
		opts.Type = TypeMixed
	}

	ctx, span := bundleTracer.Start(ctx, "bundle.Export",
		trace.WithAttributes(
			attribute.String("bundle.type", string(opts.Type)),
			attribute.Bool("bundle.zip", opts.Zip),
			attribute.Bool("bundle.sign_requested", opts.Sign),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	workDir, err := os.MkdirTemp("", "smemctx-export-*")
	if err != nil {
		return ExportResult{}, fmt.Errorf("bundle: create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	var codeRows []ChunkRow
	var codeIDs []int64
	var notes []NoteRecord
	dim := 0

	if opts.Type == TypeCode || opts.Type == TypeMixed {
		codeMems, err := eng.ListMemoriesByType(ctx, "code")
		if err != nil {
			return ExportResult{}, fmt.Errorf("bundle: list code memories: %w", err)
		}
		for _, m := range codeMems {
			meta, err := metadata.UnmarshalFromStorage(m.MetadataJSON)
			if err != nil || meta.Code == nil {
				continue
			}
			codeRows = append(codeRows, ChunkRow{
				ID:          m.ID,
				File:        meta.Code.File,
				Lang:        meta.Code.Language,
				LineStart:   meta.Code.LineStart,
				LineEnd:     meta.Code.LineEnd,
				Symbol:      meta.Code.Symbol,
				Type:        meta.Code.SymbolType,
				Timestamp:   m.UpdatedAt.UTC().Format(time.RFC3339Nano),
				ChunkSha256: meta.Code.ContentSha,
			})
			codeIDs = append(codeIDs, m.ID)
		}
	}

	if opts.Type == TypeNotes || opts.Type == TypeMixed {
		noteMems, err := eng.ListMemoriesExcludingType(ctx, "code")
		if err != nil {
			return ExportResult{}, fmt.Errorf("bundle: list note memories: %w", err)
		}
		for _, m := range noteMems {
			var rawMeta []byte
			if m.MetadataJSON != "" {
				rawMeta = []byte(m.MetadataJSON)
			}
			notes = append(notes, NoteRecord{
				ID:        m.ID,
				Content:   m.Content,
				Context:   m.Context,
				Type:      m.Type,
				Tags:      m.Tags,
				Metadata:  rawMeta,
				CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
				UpdatedAt: m.UpdatedAt.UTC().Format(time.RFC3339Nano),
			})
		}
	}

	vecIDs := codeIDs
	var vecs map[int64][]float32
	if len(vecIDs) > 0 {
		vecs, err = eng.GetVectors(ctx, vecIDs)
		if err != nil {
			return ExportResult{}, fmt.Errorf("bundle: load vectors: %w", err)
		}
		for _, v := range vecs {
			if len(v) > dim {
				dim = len(v)
			}
		}
	}

	if err := writeChunkMap(workDir, codeRows); err != nil {
		return ExportResult{}, err
	}
	if err := writeVectorBlob(workDir, vecIDs, vecs, dim); err != nil {
		return ExportResult{}, err
	}
	if err := writeNotes(workDir, notes); err != nil {
		return ExportResult{}, err
	}

	manifest := Manifest{
		SchemaVersion: SchemaVersion,
		Type:          opts.Type,
		Count:         len(codeRows) + len(notes),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Vectors:       VectorInfo{Dim: dim, Count: len(vecIDs)},
	}

	signed := opts.Sign
	var keyID string
	if signed {
		if opts.KeyRing == nil {
			return ExportResult{}, fmt.Errorf("bundle: signing requested but no keyring configured")
		}
		pub, _, err := opts.KeyRing.Active()
		if err != nil {
			return ExportResult{}, fmt.Errorf("bundle: resolve signing key: %w", err)
		}
		keyID = cryptostore.KeyID(pub)
		manifest.KeyID = keyID
	}

	if err := writeManifest(workDir, manifest); err != nil {
		return ExportResult{}, err
	}

	sums, err := computeChecksums(workDir)
	if err != nil {
		return ExportResult{}, err
	}
	if err := writeChecksums(workDir, sums); err != nil {
		return ExportResult{}, err
	}

	if signed {
		if _, err := signBundle(workDir, opts.KeyRing); err != nil {
			return ExportResult{}, err
		}
	}

	if opts.Zip {
		if err := zipDir(workDir, opts.OutPath); err != nil {
			return ExportResult{}, err
		}
	} else {
		if err := os.RemoveAll(opts.OutPath); err != nil && !os.IsNotExist(err) {
			return ExportResult{}, fmt.Errorf("bundle: clear destination: %w", err)
		}
		if err := os.Rename(workDir, opts.OutPath); err != nil {
			return ExportResult{}, fmt.Errorf("bundle: move bundle into place: %w", err)
		}
	}

	return ExportResult{
		Path:    opts.OutPath,
		Type:    opts.Type,
		Count:   manifest.Count,
		Vectors: manifest.Vectors,
		Signed:  signed,
		KeyID:   keyID,
	}, nil
}
