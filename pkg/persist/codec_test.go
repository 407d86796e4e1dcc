package persist

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// codecState is a simple struct for testing codecs.
type codecState struct {
	Digits  uint64  `json:"digits"`
	Elapsed float64 `json:"elapsed"`
	Digest  string  `json:"digest"`
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()
	original := codecState{Digits: 100_000_000, Elapsed: 12.5, Digest: "abc"}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, original))

	var decoded codecState

	require.NoError(t, codec.Decode(&buf, &decoded))
	assert.Equal(t, original, decoded)
}

func TestJSONCodec_Extension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".json", NewJSONCodec().Extension())
}

func TestJSONCodec_CompactNoIndent(t *testing.T) {
	t.Parallel()

	codec := &JSONCodec{}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, codecState{Digits: 1}))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestJSONCodec_DecodeError(t *testing.T) {
	t.Parallel()

	var decoded codecState

	err := NewJSONCodec().Decode(strings.NewReader("{not json"), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json decode")
}

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "checkpoint.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, werr := io.WriteString(w, "new")

		return werr
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteFileAtomic_WriterErrorKeepsOldContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	boom := errors.New("boom")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")

		return boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveState_InvalidDirectory(t *testing.T) {
	t.Parallel()

	err := SaveState(filepath.Join(t.TempDir(), "missing", "dir"), "state", NewJSONCodec(), codecState{})
	require.Error(t, err)
}

func TestLoadState_FileNotFound(t *testing.T) {
	t.Parallel()

	var state codecState

	err := LoadState(t.TempDir(), "absent", NewJSONCodec(), &state)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSyncDir_Missing(t *testing.T) {
	t.Parallel()

	err := SyncDir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
