// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cryptostore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// KeyRing manages the project's active Ed25519 signing keypair, used by the
// Bundle Codec to produce detached export signatures, plus an archive of
// retired public keys kept for verifying old exports.
type KeyRing struct {
	activeDir  string
	archiveDir string
}

// NewKeyRing wraps the active/archive directories a paths.Layout resolves.
func NewKeyRing(activeDir, archiveDir string) *KeyRing {
	return &KeyRing{activeDir: activeDir, archiveDir: archiveDir}
}

// KeyID returns the first 16 hex characters of SHA-256(publicKey), the
// identifier spec §3 uses to name a keypair.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])[:16]
}

func (k *KeyRing) activePrivatePath() string { return filepath.Join(k.activeDir, "private.der") }
func (k *KeyRing) activePublicPath() string  { return filepath.Join(k.activeDir, "public.der") }

// Active loads the current signing keypair, generating one on first use.
func (k *KeyRing) Active() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	priv, err := os.ReadFile(k.activePrivatePath())
	if os.IsNotExist(err) {
		return k.generate()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("cryptostore: read active private key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("cryptostore: active private key has wrong size %d", len(priv))
	}
	return ed25519.PrivateKey(priv).Public().(ed25519.PublicKey), ed25519.PrivateKey(priv), nil
}

func (k *KeyRing) generate() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptostore: generate signing key: %w", err)
	}
	if err := k.writeActive(pub, priv); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func (k *KeyRing) writeActive(pub ed25519.PublicKey, priv ed25519.PrivateKey) error {
	if err := os.MkdirAll(k.activeDir, 0o700); err != nil {
		return fmt.Errorf("cryptostore: create active key dir: %w", err)
	}
	if err := writeKeyFile(k.activePrivatePath(), priv, 0o600); err != nil {
		return err
	}
	if err := writeKeyFile(k.activePublicPath(), pub, 0o644); err != nil {
		return err
	}
	return nil
}

func writeKeyFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("cryptostore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cryptostore: rename %s into place: %w", path, err)
	}
	return nil
}

// Rotate archives the current active public key under its keyId and
// generates a fresh active keypair. Returns the new keypair's id.
func (k *KeyRing) Rotate() (string, error) {
	pub, _, err := k.Active()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(k.archiveDir, 0o700); err != nil {
		return "", fmt.Errorf("cryptostore: create archive dir: %w", err)
	}
	archivedPath := filepath.Join(k.archiveDir, KeyID(pub)+".pub")
	if err := writeKeyFile(archivedPath, pub, 0o644); err != nil {
		return "", err
	}

	newPub, _, err := k.generate()
	if err != nil {
		return "", err
	}
	return KeyID(newPub), nil
}

// ArchivedKey describes one retired public key.
type ArchivedKey struct {
	KeyID      string
	ArchivedAt time.Time
}

// List returns the active key id followed by every archived key id, newest
// archive first.
func (k *KeyRing) List() (active string, archived []ArchivedKey, err error) {
	pub, _, err := k.Active()
	if err != nil {
		return "", nil, err
	}
	active = KeyID(pub)

	entries, readErr := os.ReadDir(k.archiveDir)
	if os.IsNotExist(readErr) {
		return active, nil, nil
	}
	if readErr != nil {
		return "", nil, fmt.Errorf("cryptostore: list archive dir: %w", readErr)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		archived = append(archived, ArchivedKey{
			KeyID:      trimPubExt(e.Name()),
			ArchivedAt: info.ModTime(),
		})
	}
	sort.Slice(archived, func(i, j int) bool { return archived[i].ArchivedAt.After(archived[j].ArchivedAt) })
	return active, archived, nil
}

func trimPubExt(name string) string {
	const ext = ".pub"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return name
}

// Prune removes archived keys beyond keep, oldest first, returning how many
// were removed.
func (k *KeyRing) Prune(keep int) (int, error) {
	_, archived, err := k.List()
	if err != nil {
		return 0, err
	}
	if len(archived) <= keep {
		return 0, nil
	}
	toRemove := archived[keep:] // List is newest-first, so the tail is oldest
	removed := 0
	for _, a := range toRemove {
		path := filepath.Join(k.archiveDir, a.KeyID+".pub")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("cryptostore: prune %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}

// ArchivedPublicKey loads a retired public key by id, for verifying
// signatures made before the most recent rotation.
func (k *KeyRing) ArchivedPublicKey(keyID string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(filepath.Join(k.archiveDir, keyID+".pub"))
	if err != nil {
		return nil, fmt.Errorf("cryptostore: read archived key %s: %w", keyID, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("cryptostore: archived key %s has wrong size %d", keyID, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
