package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/pimaster/pkg/persist"
)

// Line counts of the two accepted record layouts.
const (
	legacyLines = 2
	fullLines   = 5
)

// Store reads and writes a single checkpoint file. It keeps no state between
// calls; every Load re-reads the file.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a checkpoint record is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)

	return err == nil
}

// Load returns the stored checkpoint. A missing file yields the zero
// checkpoint with known, empty offsets: nothing has been written yet.
func (s *Store) Load() (Checkpoint, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{HasOffsets: true}, nil
	}

	if err != nil {
		return Checkpoint{}, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	cp, err := Decode(f)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%s: %w", s.path, err)
	}

	return cp, nil
}

// Save atomically replaces the checkpoint record.
func (s *Store) Save(cp Checkpoint) error {
	if math.IsNaN(cp.Elapsed) || math.IsInf(cp.Elapsed, 0) || cp.Elapsed < 0 {
		return fmt.Errorf("save checkpoint: invalid elapsed %v", cp.Elapsed)
	}

	err := persist.WriteFileAtomic(s.path, func(w io.Writer) error {
		return Encode(w, cp)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return nil
}

// Encode writes cp in the text record format.
func Encode(w io.Writer, cp Checkpoint) error {
	elapsed := strconv.FormatFloat(cp.Elapsed, 'g', -1, 64)

	var err error
	if cp.HasOffsets {
		_, err = fmt.Fprintf(w, "%d\n%s\n%d\n%d\n%d\n",
			cp.Digits, elapsed, cp.Offsets.BinaryBytes, cp.Offsets.SegmentIndex, cp.Offsets.SegmentBytes)
	} else {
		_, err = fmt.Fprintf(w, "%d\n%s", cp.Digits, elapsed)
	}

	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	return nil
}

// Decode parses a checkpoint record. Errors wrap ErrCorruptCheckpoint.
func Decode(r io.Reader) (Checkpoint, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", scanErr)
	}

	if len(lines) != legacyLines && len(lines) != fullLines {
		return Checkpoint{}, fmt.Errorf("%w: expected %d or %d values, found %d",
			ErrCorruptCheckpoint, legacyLines, fullLines, len(lines))
	}

	var cp Checkpoint

	var err error

	cp.Digits, err = parseCount("digits", lines[0])
	if err != nil {
		return Checkpoint{}, err
	}

	cp.Elapsed, err = strconv.ParseFloat(lines[1], 64)
	if err != nil || math.IsNaN(cp.Elapsed) || math.IsInf(cp.Elapsed, 0) || cp.Elapsed < 0 {
		return Checkpoint{}, fmt.Errorf("%w: elapsed %q", ErrCorruptCheckpoint, lines[1])
	}

	if len(lines) == legacyLines {
		return cp, nil
	}

	cp.HasOffsets = true

	cp.Offsets.BinaryBytes, err = parseCount("binary bytes", lines[2])
	if err != nil {
		return Checkpoint{}, err
	}

	cp.Offsets.SegmentIndex, err = parseCount("segment index", lines[3])
	if err != nil {
		return Checkpoint{}, err
	}

	cp.Offsets.SegmentBytes, err = parseCount("segment bytes", lines[4])
	if err != nil {
		return Checkpoint{}, err
	}

	return cp, nil
}

func parseCount(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrCorruptCheckpoint, field, s)
	}

	return v, nil
}
