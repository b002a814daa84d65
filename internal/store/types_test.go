package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

func TestParseChunkID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		docID   string
		page    int
		seq     int
		wantErr bool
	}{
		{name: "simple", id: "jis-c-4304:12:3", docID: "jis-c-4304", page: 12, seq: 3},
		{name: "doc id with colons", id: "vendor:manual-2:5:0", docID: "vendor:manual-2", page: 5, seq: 0},
		{name: "missing segments", id: "loneid", wantErr: true},
		{name: "non-numeric seq", id: "doc:1:x", wantErr: true},
		{name: "non-numeric page", id: "doc:x:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docID, page, seq, err := ParseChunkID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.docID, docID)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.seq, seq)
		})
	}
}

func TestLoadChunksJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	content := `{"chunk_id":"d:1:0","doc_id":"d","page":1,"text":"最初のチャンク"}

{"chunk_id":"d:1:1","doc_id":"d","page":1,"text":"二番目","metadata":{"section":"2"}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	chunks, err := LoadChunksJSONL(path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "d:1:0", chunks[0].ID)
	assert.Equal(t, "最初のチャンク", chunks[0].Text)
	assert.Equal(t, map[string]string{"section": "2"}, chunks[1].Meta)
}

func TestLoadChunksJSONLErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadChunksJSONL(filepath.Join(t.TempDir(), "absent.jsonl"))
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.jsonl")
		require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))
		_, err := LoadChunksJSONL(path)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	})

	t.Run("empty chunk id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "noid.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(`{"text":"本文のみ"}`+"\n"), 0o644))
		_, err := LoadChunksJSONL(path)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	})
}
