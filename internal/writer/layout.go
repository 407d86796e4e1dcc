// Package writer appends digit blocks to the decimal segment files and the
// packed binary stream, and reconciles both with a checkpoint on resume.
package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/pimaster/pkg/config"
)

// Header is written once at the top of the first decimal segment.
const Header = "3.\n"

// Segment file naming.
const (
	segmentPrefix = "pi_"
	segmentSuffix = ".txt"
)

// Sentinel errors.
var (
	ErrReconcile = errors.New("outputs are shorter than the checkpoint records")
	ErrClosed    = errors.New("writer is closed")
)

// Layout fixes how digits are laid out on disk.
type Layout struct {
	// DigitsPerLine is the decimal line width; lines restart at every block.
	DigitsPerLine int

	// SegmentDigits is the number of global digit indices per segment file.
	SegmentDigits uint64

	// DecimalDir holds the pi_<n>.txt segment files.
	DecimalDir string

	// BinaryPath is the packed binary stream.
	BinaryPath string
}

// LayoutFromConfig derives the layout from the run configuration.
func LayoutFromConfig(cfg config.Config) Layout {
	return Layout{
		DigitsPerLine: cfg.Generation.DigitsPerLine,
		SegmentDigits: cfg.Generation.SegmentDigits,
		DecimalDir:    cfg.Output.DecimalPath(),
		BinaryPath:    cfg.Output.BinaryPath(),
	}
}

// SegmentIndex returns the 1-based segment holding the digit at global index i.
func (l Layout) SegmentIndex(i uint64) uint64 {
	return i/l.SegmentDigits + 1
}

// SegmentPath returns the path of segment idx.
func (l Layout) SegmentPath(idx uint64) string {
	return filepath.Join(l.DecimalDir, segmentPrefix+strconv.FormatUint(idx, 10)+segmentSuffix)
}

// Segments lists the segment indices present in the decimal directory, unordered.
func (l Layout) Segments() ([]uint64, error) {
	entries, err := os.ReadDir(l.DecimalDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	var out []uint64

	for _, e := range entries {
		idx, ok := parseSegmentName(e.Name())
		if ok && !e.IsDir() {
			out = append(out, idx)
		}
	}

	return out, nil
}

func parseSegmentName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}

	idx, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix), 10, 64)
	if err != nil || idx == 0 {
		return 0, false
	}

	return idx, true
}
