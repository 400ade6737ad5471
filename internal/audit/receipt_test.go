package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUnique(t *testing.T) {
	now := time.Now()
	id1 := NewID(now)
	id2 := NewID(now)
	assert.NotEqual(t, id1, id2)
}

func TestDigestArgsIsDeterministic(t *testing.T) {
	d1 := DigestArgs("recall", []string{"foo", "bar"})
	d2 := DigestArgs("recall", []string{"foo", "bar"})
	assert.Equal(t, d1, d2)
}

func TestDigestArgsDistinguishesArgBoundaries(t *testing.T) {
	d1 := DigestArgs("recall", []string{"fo", "obar"})
	d2 := DigestArgs("recall", []string{"foo", "bar"})
	assert.NotEqual(t, d1, d2)
}

func TestReceiptWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	id := NewID(now)

	r := Receipt{
		Schema:    ReceiptSchema,
		Version:   1,
		ID:        id,
		Command:   "recall",
		Argv:      []string{"recall", "foo"},
		Cwd:       "/tmp/proj",
		StartTime: now,
		EndTime:   now.Add(time.Millisecond),
		Success:   true,
		Digests:   map[string]string{"argsSha256": DigestArgs("recall", []string{"foo"})},
	}

	path, err := r.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, id+".json"), path)

	loaded, err := ReadReceipt(path)
	require.NoError(t, err)
	assert.Equal(t, r.Command, loaded.Command)
	assert.True(t, loaded.Success)
}

func TestReceiptWriteRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	r := Receipt{Schema: ReceiptSchema, ID: "fixed-id", Command: "recall"}
	_, err := r.Write(dir)
	require.NoError(t, err)

	_, err = r.Write(dir)
	assert.Error(t, err)
}
