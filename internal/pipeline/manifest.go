package pipeline

import (
	"time"

	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/persist"
)

// Manifest summarises the last completed run.
type Manifest struct {
	Version         string    `json:"version,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
	Digits          uint64    `json:"digits"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	Iterations      int       `json:"iterations"`
	BlockSize       uint64    `json:"block_size"`
	DigitsPerLine   int       `json:"digits_per_line"`
	SegmentDigits   uint64    `json:"segment_digits"`
	BinaryBytes     uint64    `json:"binary_bytes"`
	Segments        int       `json:"segments"`
	DigestAlgorithm string    `json:"digest_algorithm"`
	Digest          string    `json:"digest"`
	HexDigits       int       `json:"hex_digits"`
	HexPrecision    string    `json:"hex_precision,omitempty"`
	ArchivePath     string    `json:"archive_path,omitempty"`
	ArchiveCodec    string    `json:"archive_codec,omitempty"`
}

func manifestPersister(out config.OutputConfig) *persist.Persister[Manifest] {
	return persist.NewPersister[Manifest](out.ManifestFile, persist.NewJSONCodec())
}

// ManifestPath returns where the manifest of out is stored.
func ManifestPath(out config.OutputConfig) string {
	return out.Path(manifestPersister(out).Filename())
}

// ReadManifest loads the manifest written by the last completed run.
func ReadManifest(out config.OutputConfig) (*Manifest, error) {
	return manifestPersister(out).Load(out.BaseDir)
}

func writeManifest(out config.OutputConfig, m *Manifest) error {
	return manifestPersister(out).Save(out.BaseDir, m)
}
