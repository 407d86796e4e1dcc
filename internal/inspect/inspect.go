// Package inspect reads digit ranges back out of a run's outputs.
//
// The binary stream has no index: each block is split into lines of the
// configured width, and every line is packed on its own. A digit's byte
// offset is therefore a function of the block size and line width alone.
package inspect

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Sumatoshi-tech/pimaster/internal/writer"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/nibble"
	"github.com/Sumatoshi-tech/pimaster/pkg/safeconv"
)

// Missing stands in for a digit the binary stream does not carry: the last
// digit of an odd-length line is dropped when packing.
const Missing = '?'

// Sentinel errors.
var (
	ErrOutOfRange = errors.New("digit range is beyond the generated digits")
	ErrMismatch   = errors.New("binary and decimal digits differ")
)

// Locator maps digit indices to positions in the packed binary stream.
// Index 0 is the first digit after "3.".
type Locator struct {
	// Total is the number of digits generated so far.
	Total uint64

	BlockSize     uint64
	DigitsPerLine int
}

// NewLocator builds a locator for total digits laid out as cfg describes.
func NewLocator(cfg config.Config, total uint64) Locator {
	return Locator{
		Total:         total,
		BlockSize:     cfg.Generation.BlockSize,
		DigitsPerLine: cfg.Generation.DigitsPerLine,
	}
}

// line is one packed line of the stream.
type line struct {
	first  uint64
	length int
	offset uint64
}

func (l Locator) width() uint64 {
	return safeconv.MustIntToUint64(l.DigitsPerLine)
}

// blockBytes is the packed size of a full block.
func (l Locator) blockBytes() uint64 {
	w := l.width()
	full := l.BlockSize / w
	rest := safeconv.MustUint64ToInt(l.BlockSize % w)

	return full*uint64(nibble.PackedLen(l.DigitsPerLine)) + uint64(nibble.PackedLen(rest))
}

// lineAt returns the line holding digit i.
func (l Locator) lineAt(i uint64) line {
	w := l.width()
	block := i / l.BlockSize
	blockStart := block * l.BlockSize
	blockLen := min(l.BlockSize, l.Total-blockStart)
	idx := (i - blockStart) / w

	return line{
		first:  blockStart + idx*w,
		length: safeconv.MustUint64ToInt(min(w, blockLen-idx*w)),
		offset: block*l.blockBytes() + idx*uint64(nibble.PackedLen(l.DigitsPerLine)),
	}
}

// Offset returns the byte offset of the packed line holding digit i.
func (l Locator) Offset(i uint64) uint64 {
	return l.lineAt(i).offset
}

func (l Locator) checkRange(start uint64, count int) (uint64, error) {
	end := start + safeconv.MustIntToUint64(count)
	if end < start || end > l.Total {
		return 0, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, start, end, l.Total)
	}

	return end, nil
}

// Read returns count digits starting at start from the packed stream r,
// positioned at byte 0. Digits the stream does not carry read as Missing.
func (l Locator) Read(r io.Reader, start uint64, count int) (string, error) {
	if count <= 0 {
		return "", nil
	}

	end, err := l.checkRange(start, count)
	if err != nil {
		return "", err
	}

	err = skip(r, l.Offset(start))
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	sb.Grow(count)

	buf := make([]byte, nibble.PackedLen(l.DigitsPerLine))

	for i := start; i < end; {
		ln := l.lineAt(i)
		packed := buf[:nibble.PackedLen(ln.length)]

		_, readErr := io.ReadFull(r, packed)
		if readErr != nil {
			return "", fmt.Errorf("read line at byte %d: %w", ln.offset, readErr)
		}

		digits, unpackErr := nibble.Unpack(packed, ln.length)
		if unpackErr != nil {
			return "", fmt.Errorf("line at byte %d: %w", ln.offset, unpackErr)
		}

		if len(digits) < ln.length {
			digits += string(Missing)
		}

		from := i - ln.first
		to := min(uint64(ln.length), end-ln.first)

		sb.WriteString(digits[from:to])

		i = ln.first + to
	}

	return sb.String(), nil
}

func skip(r io.Reader, n uint64) error {
	off, err := safeconv.Uint64ToInt64(n)
	if err != nil {
		return err
	}

	if seeker, ok := r.(io.Seeker); ok {
		_, seekErr := seeker.Seek(off, io.SeekStart)
		if seekErr != nil {
			return fmt.Errorf("seek to byte %d: %w", n, seekErr)
		}

		return nil
	}

	_, copyErr := io.CopyN(io.Discard, r, off)
	if copyErr != nil {
		return fmt.Errorf("skip to byte %d: %w", n, copyErr)
	}

	return nil
}

// ReadDecimal returns count digits starting at start from the decimal
// segment files of layout.
func ReadDecimal(layout writer.Layout, start uint64, count int) (string, error) {
	if count <= 0 {
		return "", nil
	}

	end := start + safeconv.MustIntToUint64(count)

	var sb strings.Builder

	for idx := layout.SegmentIndex(start); (idx-1)*layout.SegmentDigits < end; idx++ {
		digits, err := segmentDigits(layout, idx)
		if err != nil {
			return "", err
		}

		segStart := (idx - 1) * layout.SegmentDigits
		from := max(start, segStart) - segStart
		to := min(end-segStart, uint64(len(digits)))

		if from >= to {
			break
		}

		sb.WriteString(digits[from:to])

		if to < layout.SegmentDigits {
			break
		}
	}

	if sb.Len() != count {
		return "", fmt.Errorf("%w: decimal segments hold %d of %d requested digits", ErrOutOfRange, sb.Len(), count)
	}

	return sb.String(), nil
}

func segmentDigits(layout writer.Layout, idx uint64) (string, error) {
	data, err := os.ReadFile(layout.SegmentPath(idx))
	if err != nil {
		return "", fmt.Errorf("read segment %d: %w", idx, err)
	}

	text := string(data)
	if idx == 1 {
		text = strings.TrimPrefix(text, writer.Header)
	}

	return strings.ReplaceAll(text, "\n", ""), nil
}

// Compare checks binary digits against decimal digits starting at start.
// Missing binary digits match anything.
func Compare(start uint64, binary, decimal string) error {
	if len(binary) != len(decimal) {
		return fmt.Errorf("%w: %d binary digits, %d decimal digits", ErrMismatch, len(binary), len(decimal))
	}

	for i := range len(binary) {
		if binary[i] != Missing && binary[i] != decimal[i] {
			return fmt.Errorf("%w: digit %d is %c in binary, %c in decimal",
				ErrMismatch, start+safeconv.MustIntToUint64(i), binary[i], decimal[i])
		}
	}

	return nil
}
