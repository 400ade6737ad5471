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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 200_000
	keyLenBytes      = 32
	saltLenBytes     = 16
	algorithmName    = "AES-256-CTR"
	derivationName   = "PBKDF2-HMAC-SHA256"

	maxEncryptRetries = 5
	initialBackoff    = 500 * time.Millisecond
)

// ErrDecryptionFailed is returned when a stored envelope cannot be decrypted
// or its integrity hash does not match. Decryption failure is fatal for the
// session per spec §4.2.
var ErrDecryptionFailed = errors.New("DecryptionFailed: database envelope could not be decrypted")

// Envelope is the JSON structure persisted alongside the project's encrypted
// database file.
type Envelope struct {
	Encrypted     string `json:"encrypted"` // base64
	IV            string `json:"iv"`        // base64
	IntegrityHash string `json:"integrityHash"`
	Algorithm     string `json:"algorithm"`
	KeyDerivation string `json:"keyDerivation"`
	Salt          string `json:"salt"` // base64
	// UsedFallbackIdentity is a diagnostic flag for the fallback
	// machine-identity derivation. EncryptOnClose always uses the primary
	// derivation and leaves it false; DecryptOnOpen logs fallback use
	// instead of recording it here.
	UsedFallbackIdentity bool `json:"usedFallbackIdentity,omitempty"`
}

// Store manages at-rest encryption for one project's database file.
//
// DevMode disables encryption entirely (spec §4.2 "dev mode").
type Store struct {
	DevMode bool
	log     *slog.Logger

	retryAttempts int
}

// New returns a Store. A nil logger falls back to slog.Default().
func New(devMode bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{DevMode: devMode, log: logger}
}

// deriveKey runs PBKDF2-HMAC-SHA256 over the machine identity string with
// the given salt, locking the resulting key in guarded memory.
func deriveKey(identity string, salt []byte) *memguard.LockedBuffer {
	raw := pbkdf2.Key([]byte(identity), salt, pbkdf2Iterations, keyLenBytes, sha256.New)
	locked := memguard.NewBufferFromBytes(raw)
	return locked
}

// candidateKeys returns the primary (username-included) and fallback
// (username-excluded) derived keys, in try-order, for a given salt.
func candidateKeys(salt []byte) (primary, fallback *memguard.LockedBuffer, err error) {
	primaryIdentity, err := machineIdentity(true)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptostore: derive primary identity: %w", err)
	}
	fallbackIdentity, err := machineIdentity(false)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptostore: derive fallback identity: %w", err)
	}
	return deriveKey(primaryIdentity, salt), deriveKey(fallbackIdentity, salt), nil
}

// EncryptOnClose reads the plaintext DB file, encrypts it into an Envelope
// written to encPath, and deletes the plaintext on success. In DevMode it is
// a no-op. On failure it logs and returns the error without touching the
// plaintext file, so the caller can retry with backoff on the next close.
func (s *Store) EncryptOnClose(plaintextPath, encPath string) error {
	if s.DevMode {
		return nil
	}

	plaintext, err := os.ReadFile(plaintextPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to encrypt yet
		}
		return s.deferredFailure("read plaintext db", err)
	}

	salt := make([]byte, saltLenBytes)
	if _, err := rand.Read(salt); err != nil {
		return s.deferredFailure("generate salt", err)
	}

	primary, _, err := candidateKeys(salt)
	if err != nil {
		return s.deferredFailure("derive key", err)
	}
	defer primary.Destroy()

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return s.deferredFailure("generate iv", err)
	}

	block, err := aes.NewCipher(primary.Bytes())
	if err != nil {
		return s.deferredFailure("init cipher", err)
	}
	stream := cipher.NewCTR(block, iv)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	integrity := sha256.Sum256(plaintext)

	env := Envelope{
		Encrypted:     base64.StdEncoding.EncodeToString(ciphertext),
		IV:            base64.StdEncoding.EncodeToString(iv),
		IntegrityHash: fmt.Sprintf("%x", integrity),
		Algorithm:     algorithmName,
		KeyDerivation: derivationName,
		Salt:          base64.StdEncoding.EncodeToString(salt),
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return s.deferredFailure("marshal envelope", err)
	}

	tmp := encPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return s.deferredFailure("write envelope", err)
	}
	if err := os.Rename(tmp, encPath); err != nil {
		return s.deferredFailure("rename envelope", err)
	}
	if err := os.Remove(plaintextPath); err != nil {
		// The envelope is already durable; failing to delete plaintext is
		// logged but not treated as an encryption failure.
		s.log.Warn("cryptostore: encrypted envelope written but plaintext removal failed",
			slog.String("path", plaintextPath), slog.Any("error", err))
	}

	s.retryAttempts = 0
	return nil
}

// deferredFailure logs an encryption failure and leaves the caller free to
// retry; it never returns an error that should crash the process.
func (s *Store) deferredFailure(step string, cause error) error {
	s.retryAttempts++
	s.log.Warn("cryptostore: encryption deferred, plaintext left in place",
		slog.String("step", step), slog.Any("error", cause), slog.Int("attempt", s.retryAttempts))
	return fmt.Errorf("encryption deferred at %s: %w", step, cause)
}

// Backoff returns how long to wait before the next EncryptOnClose retry,
// following bounded exponential backoff starting at 500ms, capped at
// maxEncryptRetries attempts (spec §5).
func (s *Store) Backoff() (wait time.Duration, exhausted bool) {
	if s.retryAttempts >= maxEncryptRetries {
		return 0, true
	}
	wait = initialBackoff
	for i := 0; i < s.retryAttempts; i++ {
		wait *= 2
	}
	return wait, false
}

// DecryptOnOpen reads the Envelope at encPath, decrypts it, verifies the
// integrity hash, and writes the recovered plaintext to plaintextPath.
// Decryption failure is fatal for the session (ErrDecryptionFailed).
func (s *Store) DecryptOnOpen(encPath, plaintextPath string) error {
	if s.DevMode {
		return nil
	}

	raw, err := os.ReadFile(encPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no envelope; plaintext DB (if any) is used as-is
		}
		return fmt.Errorf("%w: read envelope: %v", ErrDecryptionFailed, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: parse envelope: %v", ErrDecryptionFailed, err)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return fmt.Errorf("%w: decode salt: %v", ErrDecryptionFailed, err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return fmt.Errorf("%w: decode iv: %v", ErrDecryptionFailed, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return fmt.Errorf("%w: decode ciphertext: %v", ErrDecryptionFailed, err)
	}

	primary, fallback, err := candidateKeys(salt)
	if err != nil {
		return fmt.Errorf("%w: derive keys: %v", ErrDecryptionFailed, err)
	}
	defer primary.Destroy()
	defer fallback.Destroy()

	plaintext, usedFallback, err := tryDecrypt(primary.Bytes(), fallback.Bytes(), iv, ciphertext, env.IntegrityHash)
	if err != nil {
		return err
	}

	if err := os.WriteFile(plaintextPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("%w: write recovered plaintext: %v", ErrDecryptionFailed, err)
	}
	if usedFallback {
		s.log.Info("cryptostore: decrypted using fallback (username-less) identity derivation")
	}
	return nil
}

func tryDecrypt(primaryKey, fallbackKey, iv, ciphertext []byte, wantIntegrity string) (plaintext []byte, usedFallback bool, err error) {
	attempt := func(key []byte) ([]byte, bool) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, false
		}
		stream := cipher.NewCTR(block, iv)
		out := make([]byte, len(ciphertext))
		stream.XORKeyStream(out, ciphertext)
		sum := sha256.Sum256(out)
		got := fmt.Sprintf("%x", sum)
		return out, subtle.ConstantTimeCompare([]byte(got), []byte(wantIntegrity)) == 1
	}

	if out, ok := attempt(primaryKey); ok {
		return out, false, nil
	}
	if out, ok := attempt(fallbackKey); ok {
		return out, true, nil
	}
	return nil, false, fmt.Errorf("%w: integrity hash mismatch under both identity derivations", ErrDecryptionFailed)
}
