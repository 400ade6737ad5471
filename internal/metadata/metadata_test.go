package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeChunkMetaValidate(t *testing.T) {
	cases := []struct {
		name    string
		meta    CodeChunkMeta
		wantErr bool
	}{
		{"valid", CodeChunkMeta{File: "a.go", Language: "go", ContentSha: "deadbeef", LineStart: 1, LineEnd: 10}, false},
		{"missing file", CodeChunkMeta{Language: "go", ContentSha: "x", LineStart: 1, LineEnd: 1}, true},
		{"missing language", CodeChunkMeta{File: "a.go", ContentSha: "x", LineStart: 1, LineEnd: 1}, true},
		{"missing contentSha", CodeChunkMeta{File: "a.go", Language: "go", LineStart: 1, LineEnd: 1}, true},
		{"inverted lines", CodeChunkMeta{File: "a.go", Language: "go", ContentSha: "x", LineStart: 10, LineEnd: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.meta.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := NewCode(CodeChunkMeta{
		File: "src/a.ts", Language: "typescript", LineStart: 1, LineEnd: 5, ContentSha: "abc123",
	})
	raw, err := MarshalForStorage(m)
	require.NoError(t, err)

	back, err := UnmarshalFromStorage(raw)
	require.NoError(t, err)
	assert.Equal(t, KindCode, back.Kind)
	require.NotNil(t, back.Code)
	assert.Equal(t, "src/a.ts", back.Code.File)
}

func TestMetadataKindMismatchRejected(t *testing.T) {
	m := Metadata{Kind: KindCode} // Code left nil
	_, err := MarshalForStorage(m)
	assert.Error(t, err)
}

func TestUnmarshalEmptyIsZeroValue(t *testing.T) {
	m, err := UnmarshalFromStorage("")
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, m)
}
