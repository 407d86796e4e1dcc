package checkpoint_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pimaster/internal/checkpoint"
)

func newStore(t *testing.T) *checkpoint.Store {
	t.Helper()

	return checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoint.txt"))
}

func TestStore_Load_MissingFileReturnsZero(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.False(t, store.Exists())

	cp, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, uint64(0), cp.Digits)
	assert.InDelta(t, 0.0, cp.Elapsed, 0)
	assert.True(t, cp.HasOffsets)
	assert.Equal(t, checkpoint.Offsets{}, cp.Offsets)
}

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []checkpoint.Checkpoint{
		{Digits: 0, Elapsed: 0},
		{Digits: 1_000_000, Elapsed: 123.456789},
		{Digits: math.MaxUint64, Elapsed: 1e300},
		{Digits: 42, Elapsed: 0.1 + 0.2},
		{
			Digits:     10_000_000,
			Elapsed:    3600.25,
			HasOffsets: true,
			Offsets:    checkpoint.Offsets{BinaryBytes: 5_000_000, SegmentIndex: 2, SegmentBytes: 5_100_003},
		},
	}

	for _, want := range cases {
		store := newStore(t)
		require.NoError(t, store.Save(want))

		got, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestStore_Save_Overwrites(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, store.Save(checkpoint.Checkpoint{Digits: 5, Elapsed: 1}))
	require.NoError(t, store.Save(checkpoint.Checkpoint{Digits: 10, Elapsed: 2}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Digits)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_Save_RejectsInvalidElapsed(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.Error(t, store.Save(checkpoint.Checkpoint{Elapsed: math.NaN()}))
	require.Error(t, store.Save(checkpoint.Checkpoint{Elapsed: -1}))
	assert.False(t, store.Exists())
}

func TestStore_Load_LegacyTwoLineFormat(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("3000000\n95.5"), 0o600))

	cp, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, uint64(3_000_000), cp.Digits)
	assert.InDelta(t, 95.5, cp.Elapsed, 1e-12)
	assert.False(t, cp.HasOffsets)
}

func TestStore_Load_Corrupt(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":         "",
		"one_line":      "100\n",
		"bad_digits":    "abc\n1.0\n",
		"negative":      "-5\n1.0\n",
		"bad_elapsed":   "100\nsoon\n",
		"nan_elapsed":   "100\nNaN\n",
		"neg_elapsed":   "100\n-2\n",
		"three_lines":   "100\n1.0\n7\n",
		"bad_offsets":   "100\n1.0\n50\nx\n0\n",
		"float_digits":  "1.5\n1.0\n",
		"too_many_line": "1\n1\n1\n1\n1\n1\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newStore(t)
			require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))

			_, err := store.Load()
			require.ErrorIs(t, err, checkpoint.ErrCorruptCheckpoint)
		})
	}
}

func TestEncode_LegacyMatchesClassicFormat(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	require.NoError(t, checkpoint.Encode(&sb, checkpoint.Checkpoint{Digits: 100, Elapsed: 2.5}))
	assert.Equal(t, "100\n2.5", sb.String())
}
