package writer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/pimaster/internal/checkpoint"
	"github.com/Sumatoshi-tech/pimaster/pkg/nibble"
	"github.com/Sumatoshi-tech/pimaster/pkg/persist"
	"github.com/Sumatoshi-tech/pimaster/pkg/safeconv"
)

// File permissions and buffer sizes.
const (
	dirPerm  = 0o755
	filePerm = 0o644
	bufSize  = 256 * humanize.KiByte
)

// Block is a run of consecutive fractional digits starting at a global index.
type Block struct {
	Start  uint64
	Digits string
}

// Writer appends blocks to both output formats. It owns the binary stream
// handle for its whole lifetime and at most one open segment file.
type Writer struct {
	layout Layout
	logger *slog.Logger

	bin      *os.File
	binBuf   *bufio.Writer
	binBytes uint64

	seg      *os.File
	segBuf   *bufio.Writer
	segIndex uint64
	segBytes uint64

	dirDirty bool
	packBuf  []byte
	closed   bool
}

// Open prepares the outputs for appending. The current segment is the
// highest-numbered segment already on disk, if any.
func Open(layout Layout, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	err := os.MkdirAll(layout.DecimalDir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create decimal dir: %w", err)
	}

	bin, err := os.OpenFile(layout.BinaryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("open binary stream: %w", err)
	}

	binBytes, err := fileSize(bin.Name())
	if err != nil {
		_ = bin.Close()

		return nil, err
	}

	w := &Writer{
		layout:   layout,
		logger:   logger,
		bin:      bin,
		binBuf:   bufio.NewWriterSize(bin, bufSize),
		binBytes: binBytes,
	}

	segments, err := layout.Segments()
	if err != nil {
		_ = bin.Close()

		return nil, err
	}

	if len(segments) > 0 {
		w.segIndex = slices.Max(segments)

		w.segBytes, err = fileSize(layout.SegmentPath(w.segIndex))
		if err != nil {
			_ = bin.Close()

			return nil, err
		}
	}

	return w, nil
}

// WriteBlock splits the block into lines of DigitsPerLine digits, counted
// from the block's first digit, and appends every line to both outputs.
// Each line packs independently, so an odd-length line loses its last digit
// in the binary stream only.
func (w *Writer) WriteBlock(block Block) error {
	if w.closed {
		return ErrClosed
	}

	width := w.layout.DigitsPerLine
	digits := block.Digits

	for off := 0; off < len(digits); off += width {
		line := digits[off:min(off+width, len(digits))]

		var err error

		w.packBuf, err = nibble.AppendPack(w.packBuf[:0], line)
		if err != nil {
			return fmt.Errorf("pack line at digit %d: %w", block.Start+safeconv.MustIntToUint64(off), err)
		}

		err = w.writeDecimal(block.Start+safeconv.MustIntToUint64(off), line)
		if err != nil {
			return err
		}

		_, err = w.binBuf.Write(w.packBuf)
		if err != nil {
			return fmt.Errorf("write binary stream: %w", err)
		}

		w.binBytes += safeconv.MustIntToUint64(len(w.packBuf))
	}

	return nil
}

// writeDecimal appends line, whose first digit has global index pos, to the
// segment files. A line that crosses a segment boundary is split; each piece
// ends with its own line terminator.
func (w *Writer) writeDecimal(pos uint64, line string) error {
	for line != "" {
		idx := w.layout.SegmentIndex(pos)
		room := idx*w.layout.SegmentDigits - pos
		n := safeconv.MustUint64ToInt(min(room, safeconv.MustIntToUint64(len(line))))

		err := w.openSegment(idx)
		if err != nil {
			return err
		}

		_, err = w.segBuf.WriteString(line[:n])
		if err == nil {
			err = w.segBuf.WriteByte('\n')
		}

		if err != nil {
			return fmt.Errorf("write segment %d: %w", idx, err)
		}

		w.segBytes += safeconv.MustIntToUint64(n + 1)
		pos += safeconv.MustIntToUint64(n)
		line = line[n:]
	}

	return nil
}

// openSegment makes idx the current segment, syncing and closing the previous one.
func (w *Writer) openSegment(idx uint64) error {
	if w.seg != nil && w.segIndex == idx {
		return nil
	}

	err := w.closeSegment(true)
	if err != nil {
		return err
	}

	path := w.layout.SegmentPath(idx)

	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open segment %d: %w", idx, err)
	}

	size, err := fileSize(path)
	if err != nil {
		_ = f.Close()

		return err
	}

	w.seg = f
	w.segBuf = bufio.NewWriterSize(f, bufSize)
	w.segIndex = idx
	w.segBytes = size

	if isNew {
		w.dirDirty = true

		w.logger.Debug("writer: new segment", "segment", idx, "path", path)

		if idx == 1 {
			_, err = w.segBuf.WriteString(Header)
			if err != nil {
				return fmt.Errorf("write header: %w", err)
			}

			w.segBytes += uint64(len(Header))
		}
	}

	return nil
}

func (w *Writer) closeSegment(sync bool) error {
	if w.seg == nil {
		return nil
	}

	err := w.segBuf.Flush()
	if err == nil && sync {
		err = w.seg.Sync()
	}

	closeErr := w.seg.Close()
	w.seg = nil
	w.segBuf = nil

	if err = errors.Join(err, closeErr); err != nil {
		return fmt.Errorf("close segment %d: %w", w.segIndex, err)
	}

	return nil
}

// Offsets reports the output sizes including buffered, not yet synced data.
// Record them only after Sync.
func (w *Writer) Offsets() checkpoint.Offsets {
	return checkpoint.Offsets{
		BinaryBytes:  w.binBytes,
		SegmentIndex: w.segIndex,
		SegmentBytes: w.segBytes,
	}
}

// Sync flushes buffers and fsyncs both outputs and, when segments were
// created, the decimal directory.
func (w *Writer) Sync() error {
	if w.closed {
		return ErrClosed
	}

	err := w.binBuf.Flush()
	if err != nil {
		return fmt.Errorf("flush binary stream: %w", err)
	}

	err = w.bin.Sync()
	if err != nil {
		return fmt.Errorf("sync binary stream: %w", err)
	}

	if w.seg != nil {
		err = w.segBuf.Flush()
		if err == nil {
			err = w.seg.Sync()
		}

		if err != nil {
			return fmt.Errorf("sync segment %d: %w", w.segIndex, err)
		}
	}

	if w.dirDirty {
		err = persist.SyncDir(w.layout.DecimalDir)
		if err != nil {
			return err
		}

		w.dirDirty = false
	}

	return nil
}

// Close flushes and closes both outputs without fsync.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	flushErr := w.binBuf.Flush()
	closeErr := w.bin.Close()
	segErr := w.closeSegment(false)

	err := errors.Join(flushErr, closeErr, segErr)
	if err != nil {
		return fmt.Errorf("close writer: %w", err)
	}

	return nil
}

func fileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	return safeconv.Int64ToUint64(info.Size())
}
