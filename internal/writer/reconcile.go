package writer

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/Sumatoshi-tech/pimaster/internal/checkpoint"
	"github.com/Sumatoshi-tech/pimaster/pkg/persist"
	"github.com/Sumatoshi-tech/pimaster/pkg/safeconv"
)

// Report describes what Reconcile discarded.
type Report struct {
	BinaryTruncated  uint64
	SegmentTruncated uint64
	SegmentsRemoved  []uint64
}

// Changed reports whether any output was modified.
func (r Report) Changed() bool {
	return r.BinaryTruncated > 0 || r.SegmentTruncated > 0 || len(r.SegmentsRemoved) > 0
}

// Reconcile cuts both outputs back to the sizes recorded in offsets, so that
// data written after the last checkpoint is not written twice on resume.
// Segments past offsets.SegmentIndex are removed. Zero offsets reset the run.
// An output shorter than recorded yields ErrReconcile and nothing is modified.
func Reconcile(layout Layout, offsets checkpoint.Offsets) (Report, error) {
	var report Report

	binSize, err := sizeOrZero(layout.BinaryPath)
	if err != nil {
		return report, err
	}

	if binSize < offsets.BinaryBytes {
		return report, fmt.Errorf("%w: binary stream has %d bytes, checkpoint records %d",
			ErrReconcile, binSize, offsets.BinaryBytes)
	}

	segments, err := layout.Segments()
	if err != nil {
		return report, err
	}

	slices.Sort(segments)

	var segSize uint64

	if offsets.SegmentIndex > 0 {
		segSize, err = sizeOrZero(layout.SegmentPath(offsets.SegmentIndex))
		if err != nil {
			return report, err
		}

		if segSize < offsets.SegmentBytes {
			return report, fmt.Errorf("%w: segment %d has %d bytes, checkpoint records %d",
				ErrReconcile, offsets.SegmentIndex, segSize, offsets.SegmentBytes)
		}
	}

	if binSize > offsets.BinaryBytes {
		err = truncate(layout.BinaryPath, offsets.BinaryBytes)
		if err != nil {
			return report, err
		}

		report.BinaryTruncated = binSize - offsets.BinaryBytes
	}

	if offsets.SegmentIndex > 0 && segSize > offsets.SegmentBytes {
		err = truncate(layout.SegmentPath(offsets.SegmentIndex), offsets.SegmentBytes)
		if err != nil {
			return report, err
		}

		report.SegmentTruncated = segSize - offsets.SegmentBytes
	}

	for _, idx := range segments {
		if idx <= offsets.SegmentIndex {
			continue
		}

		err = os.Remove(layout.SegmentPath(idx))
		if err != nil {
			return report, fmt.Errorf("remove segment %d: %w", idx, err)
		}

		report.SegmentsRemoved = append(report.SegmentsRemoved, idx)
	}

	if len(report.SegmentsRemoved) > 0 {
		err = persist.SyncDir(layout.DecimalDir)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

func sizeOrZero(path string) (uint64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	return safeconv.Int64ToUint64(info.Size())
}

func truncate(path string, size uint64) error {
	n, err := safeconv.Uint64ToInt64(size)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	err = f.Truncate(n)
	if err == nil {
		err = f.Sync()
	}

	closeErr := f.Close()

	if err = errors.Join(err, closeErr); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}

	return nil
}
