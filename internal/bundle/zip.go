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
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// zipDir packages every regular file directly under dir into a zip archive
// at zipPath (flat, no subdirectories: a .smemctx bundle has no nested
// structure).
func zipDir(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("bundle: create zip %s: %w", zipPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("bundle: read bundle dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := addZipEntry(zw, dir, e.Name()); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("bundle: finalize zip: %w", err)
	}
	return nil
}

func addZipEntry(zw *zip.Writer, dir, name string) error {
	src, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("bundle: open %s for zipping: %w", name, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("bundle: write zip entry %s: %w", name, err)
	}
	return nil
}

// unzipDir extracts every entry of the zip at zipPath into dir (flat).
func unzipDir(zipPath, dir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("bundle: open zip %s: %w", zipPath, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bundle: create extract dir: %w", err)
	}
	for _, f := range zr.File {
		name := filepath.Base(f.Name)
		if name == "." || name == ".." || name == "" {
			continue
		}
		if err := extractZipEntry(f, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("bundle: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("bundle: extract %s: %w", f.Name, err)
	}
	return nil
}

// isZipFile reports whether path looks like a single zip file rather than a
// bundle directory, by checking the ZIP local-file-header magic.
func isZipFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return magic[0] == 'P' && magic[1] == 'K' && magic[2] == 0x03 && magic[3] == 0x04
}
