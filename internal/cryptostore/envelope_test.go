package cryptostore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plaintextPath := filepath.Join(dir, "memory.db")
	encPath := filepath.Join(dir, "memory.db.enc")

	original := []byte("not-really-sqlite-but-deterministic-bytes")
	require.NoError(t, os.WriteFile(plaintextPath, original, 0o600))

	s := New(false, nil)
	require.NoError(t, s.EncryptOnClose(plaintextPath, encPath))

	_, err := os.Stat(plaintextPath)
	assert.True(t, os.IsNotExist(err), "plaintext should be removed after successful encryption")

	_, err = os.Stat(encPath)
	require.NoError(t, err)

	recovered := filepath.Join(dir, "memory.db.recovered")
	require.NoError(t, s.DecryptOnOpen(encPath, recovered))

	got, err := os.ReadFile(recovered)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestDecryptFailsClosedOnTamperedCiphertext(t *testing.T) {
	dir := t.TempDir()
	plaintextPath := filepath.Join(dir, "memory.db")
	encPath := filepath.Join(dir, "memory.db.enc")

	require.NoError(t, os.WriteFile(plaintextPath, []byte("hello world"), 0o600))
	s := New(false, nil)
	require.NoError(t, s.EncryptOnClose(plaintextPath, encPath))

	raw, err := os.ReadFile(encPath)
	require.NoError(t, err)
	tampered := append([]byte{}, raw...)
	// Flip a byte inside the JSON's base64 ciphertext field; this corrupts
	// the decoded bytes without breaking JSON parsing, provided the target
	// byte sits within the quoted "encrypted" value.
	idx := indexOf(tampered, []byte(`"encrypted":"`))
	require.GreaterOrEqual(t, idx, 0)
	flipAt := idx + len(`"encrypted":"`) + 2
	tampered[flipAt] ^= 0xFF
	require.NoError(t, os.WriteFile(encPath, tampered, 0o600))

	err = s.DecryptOnOpen(encPath, filepath.Join(dir, "out.db"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDevModeSkipsEncryption(t *testing.T) {
	dir := t.TempDir()
	plaintextPath := filepath.Join(dir, "memory.db")
	encPath := filepath.Join(dir, "memory.db.enc")
	require.NoError(t, os.WriteFile(plaintextPath, []byte("plain"), 0o600))

	s := New(true, nil)
	require.NoError(t, s.EncryptOnClose(plaintextPath, encPath))

	_, err := os.Stat(plaintextPath)
	assert.NoError(t, err, "dev mode must leave plaintext untouched")
	_, err = os.Stat(encPath)
	assert.True(t, os.IsNotExist(err), "dev mode must not write an envelope")
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
