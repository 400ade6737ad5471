// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bundle implements the .smemctx portable export/import codec: a
// directory (optionally zipped) of a manifest, a CSV chunk map, a raw
// float32 vector blob, a JSONL note dump, a checksum file, and an optional
// detached Ed25519 signature. It generalizes the "assemble, checksum,
// compress" snapshot pattern to a multi-file, cross-machine bundle.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion is the only manifest schema version this codec writes or
// accepts for import. Unknown future versions fail closed (spec §4.11).
const SchemaVersion = 1

// BundleType names what kind of memories a bundle carries.
type BundleType string

const (
	TypeCode  BundleType = "code"
	TypeNotes BundleType = "notes"
	TypeMixed BundleType = "mixed"
)

// VectorInfo describes the shape of vectors.f32.
type VectorInfo struct {
	Dim   int `json:"dim"`
	Count int `json:"count"`
}

// Manifest is manifest.json, field order matching spec §4.11.
type Manifest struct {
	SchemaVersion int        `json:"schemaVersion"`
	Type          BundleType `json:"type"`
	Count         int        `json:"count"`
	CreatedAt     string     `json:"createdAt"`
	Vectors       VectorInfo `json:"vectors"`
	KeyID         string     `json:"keyId,omitempty"`
}

const (
	manifestFile  = "manifest.json"
	mapFile       = "map.csv"
	vectorsFile   = "vectors.f32"
	notesFile     = "notes.jsonl"
	checksumsFile = "checksums.json"
	signatureFile = "signature.bin"
	publicKeyFile = "publickey.der"
)

// checksummedFiles lists the files checksums.json covers, in the canonical
// order the detached signature is computed over.
var checksummedFiles = []string{manifestFile, mapFile, vectorsFile, notesFile}

func writeManifest(dir string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), raw, 0o644)
}

func readManifest(dir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("bundle: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("bundle: parse manifest: %w", err)
	}
	if m.SchemaVersion != SchemaVersion {
		return Manifest{}, fmt.Errorf("bundle: unsupported schemaVersion %d, fails closed", m.SchemaVersion)
	}
	return m, nil
}
