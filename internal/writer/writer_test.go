package writer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pimaster/internal/checkpoint"
	"github.com/Sumatoshi-tech/pimaster/internal/writer"
	"github.com/Sumatoshi-tech/pimaster/pkg/nibble"
)

func newLayout(t *testing.T, width int, segment uint64) writer.Layout {
	t.Helper()

	base := t.TempDir()

	return writer.Layout{
		DigitsPerLine: width,
		SegmentDigits: segment,
		DecimalDir:    filepath.Join(base, "decimal"),
		BinaryPath:    filepath.Join(base, "pi.bin"),
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func writeBlocks(t *testing.T, layout writer.Layout, blocks ...writer.Block) checkpoint.Offsets {
	t.Helper()

	w, err := writer.Open(layout, nil)
	require.NoError(t, err)

	for _, b := range blocks {
		require.NoError(t, w.WriteBlock(b))
	}

	require.NoError(t, w.Sync())

	offsets := w.Offsets()
	require.NoError(t, w.Close())

	return offsets
}

func TestWriter_LinesRestartAtEveryBlock(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 50, 5_000_000)

	offsets := writeBlocks(t, layout,
		writer.Block{Start: 0, Digits: "14159"},
		writer.Block{Start: 5, Digits: "26535"},
	)

	assert.Equal(t, "3.\n14159\n26535\n", readFile(t, layout.SegmentPath(1)))
	assert.Equal(t, "\x14\x15\x26\x53", readFile(t, layout.BinaryPath))
	assert.Equal(t, checkpoint.Offsets{BinaryBytes: 4, SegmentIndex: 1, SegmentBytes: 15}, offsets)
}

func TestWriter_SingleLineBlock(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 50, 5_000_000)

	writeBlocks(t, layout, writer.Block{Start: 0, Digits: "1415926535"})

	assert.Equal(t, "3.\n1415926535\n", readFile(t, layout.SegmentPath(1)))
	assert.Equal(t, "\x14\x15\x92\x65\x35", readFile(t, layout.BinaryPath))
}

func TestWriter_ShortTrailingLine(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 4, 1000)

	writeBlocks(t, layout, writer.Block{Start: 0, Digits: "1415926535"})

	assert.Equal(t, "3.\n1415\n9265\n35\n", readFile(t, layout.SegmentPath(1)))
	assert.Equal(t, "\x14\x15\x92\x65\x35", readFile(t, layout.BinaryPath))
}

func TestWriter_SplitsLinesAtSegmentBoundary(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 3, 4)

	offsets := writeBlocks(t, layout, writer.Block{Start: 0, Digits: "1415926535"})

	assert.Equal(t, "3.\n141\n5\n", readFile(t, layout.SegmentPath(1)))
	assert.Equal(t, "92\n65\n", readFile(t, layout.SegmentPath(2)))
	assert.Equal(t, "3\n5\n", readFile(t, layout.SegmentPath(3)))

	// Odd lines lose their last digit; the single-digit line packs to nothing.
	assert.Equal(t, "\x14\x59\x65", readFile(t, layout.BinaryPath))
	assert.Equal(t, checkpoint.Offsets{BinaryBytes: 3, SegmentIndex: 3, SegmentBytes: 4}, offsets)
}

func TestWriter_ReopenAppendsWithoutHeader(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 50, 1000)

	writeBlocks(t, layout, writer.Block{Start: 0, Digits: "1415"})
	offsets := writeBlocks(t, layout, writer.Block{Start: 4, Digits: "9265"})

	assert.Equal(t, "3.\n1415\n9265\n", readFile(t, layout.SegmentPath(1)))
	assert.Equal(t, "\x14\x15\x92\x65", readFile(t, layout.BinaryPath))
	assert.Equal(t, checkpoint.Offsets{BinaryBytes: 4, SegmentIndex: 1, SegmentBytes: 13}, offsets)
}

func TestWriter_ReopenContinuesHighestSegment(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 3, 4)

	writeBlocks(t, layout, writer.Block{Start: 0, Digits: "1415926535"})
	offsets := writeBlocks(t, layout, writer.Block{Start: 10, Digits: "89"})

	assert.Equal(t, "3\n5\n89\n", readFile(t, layout.SegmentPath(3)))
	assert.Equal(t, "\x14\x59\x65\x89", readFile(t, layout.BinaryPath))
	assert.Equal(t, checkpoint.Offsets{BinaryBytes: 4, SegmentIndex: 3, SegmentBytes: 7}, offsets)
}

func TestWriter_InvalidDigitWritesNothing(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 50, 1000)

	w, err := writer.Open(layout, nil)
	require.NoError(t, err)

	err = w.WriteBlock(writer.Block{Start: 0, Digits: "14a5"})
	require.ErrorIs(t, err, nibble.ErrInvalidDigit)

	require.NoError(t, w.Close())

	assert.NoFileExists(t, layout.SegmentPath(1))
	assert.Empty(t, readFile(t, layout.BinaryPath))
}

func TestWriter_ClosedRejectsWrites(t *testing.T) {
	t.Parallel()

	w, err := writer.Open(newLayout(t, 50, 1000), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	require.ErrorIs(t, w.WriteBlock(writer.Block{Digits: "14"}), writer.ErrClosed)
	require.ErrorIs(t, w.Sync(), writer.ErrClosed)
}

func TestLayout_SegmentIndex(t *testing.T) {
	t.Parallel()

	layout := writer.Layout{SegmentDigits: 5_000_000}

	assert.Equal(t, uint64(1), layout.SegmentIndex(0))
	assert.Equal(t, uint64(1), layout.SegmentIndex(4_999_999))
	assert.Equal(t, uint64(2), layout.SegmentIndex(5_000_000))
	assert.Equal(t, uint64(3), layout.SegmentIndex(10_000_000))
}

func TestLayout_Segments(t *testing.T) {
	t.Parallel()

	layout := newLayout(t, 50, 1000)

	segments, err := layout.Segments()
	require.NoError(t, err)
	assert.Empty(t, segments)

	require.NoError(t, os.MkdirAll(layout.DecimalDir, 0o755))

	for _, name := range []string{"pi_1.txt", "pi_12.txt", "pi_0.txt", "pi_x.txt", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(layout.DecimalDir, name), nil, 0o644))
	}

	segments, err = layout.Segments()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1, 12}, segments)
	assert.Equal(t, filepath.Join(layout.DecimalDir, "pi_12.txt"), layout.SegmentPath(12))
}
