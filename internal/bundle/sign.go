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
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"

	"github.com/securamem/smem/internal/cryptostore"
)

// signBundle signs the canonical payload with the keyring's active key and
// writes signature.bin + publickey.der alongside the bundle files.
func signBundle(dir string, kr *cryptostore.KeyRing) (keyID string, err error) {
	pub, priv, err := kr.Active()
	if err != nil {
		return "", fmt.Errorf("bundle: load signing key: %w", err)
	}
	payload, err := canonicalPayload(dir)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, payload)
	if err := os.WriteFile(filepath.Join(dir, signatureFile), sig, 0o644); err != nil {
		return "", fmt.Errorf("bundle: write signature.bin: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), pub, 0o644); err != nil {
		return "", fmt.Errorf("bundle: write publickey.der: %w", err)
	}
	return cryptostore.KeyID(pub), nil
}

// verifySignature checks signature.bin against publickey.der over the
// canonical payload. Returns false (not an error) when no signature is
// present, so callers can distinguish "missing" from "invalid".
func verifySignature(dir string) (present, valid bool, err error) {
	sig, err := os.ReadFile(filepath.Join(dir, signatureFile))
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("bundle: read signature.bin: %w", err)
	}
	pub, err := os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err != nil {
		return true, false, fmt.Errorf("bundle: read publickey.der: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return true, false, nil
	}
	payload, err := canonicalPayload(dir)
	if err != nil {
		return true, false, err
	}
	return true, ed25519.Verify(ed25519.PublicKey(pub), payload, sig), nil
}
