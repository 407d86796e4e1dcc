package config

import "time"

// Generation defaults.
const (
	DefaultTotalDigits        = 100_000_000
	DefaultBlockSize          = 1_000_000
	DefaultDigitsPerLine      = 50
	DefaultSegmentDigits      = 5_000_000
	DefaultCheckpointInterval = 120 * time.Second
)

// Output defaults. Relative file names resolve against the base directory.
const (
	DefaultBaseDir        = "pi_master"
	DefaultDecimalDir     = "decimal"
	DefaultBinaryFile     = "pi.bin"
	DefaultCheckpointFile = "checkpoint.txt"
	DefaultDigestFile     = "sha256.txt"
	DefaultHexFile        = "pi_hex_bbp.txt"
	DefaultManifestFile   = "manifest"
	DefaultLockFile       = ".lock"
)

// Oracle defaults.
const (
	DefaultOracleStrategy = OracleRecompute
	DefaultGuardDigits    = 20
	DefaultOraclePrefetch = false
)

// Verify defaults.
const (
	DefaultVerifyAlgorithm = "sha256"
	DefaultVerifyChunkSize = "1MiB"
)

// Hex defaults.
const (
	DefaultHexDigits    = 100_000
	DefaultHexPrecision = HexFloat
)

// Archive defaults.
const (
	DefaultArchiveEnabled = false
	DefaultArchiveCodec   = "lz4"
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = LogFormatAuto
)

// Oracle strategies.
const (
	OracleRecompute = "recompute"
	OracleMemoize   = "memoize"
)

// Hex precision modes.
const (
	HexFloat = "float"
	HexFixed = "fixed"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Default returns the configuration used when no file, environment or flag
// overrides anything. It is identical to what LoadConfig produces from an
// empty file.
func Default() Config {
	return Config{
		Generation: GenerationConfig{
			TotalDigits:        DefaultTotalDigits,
			BlockSize:          DefaultBlockSize,
			DigitsPerLine:      DefaultDigitsPerLine,
			SegmentDigits:      DefaultSegmentDigits,
			CheckpointInterval: DefaultCheckpointInterval,
		},
		Output: OutputConfig{
			BaseDir:        DefaultBaseDir,
			DecimalDir:     DefaultDecimalDir,
			BinaryFile:     DefaultBinaryFile,
			CheckpointFile: DefaultCheckpointFile,
			DigestFile:     DefaultDigestFile,
			HexFile:        DefaultHexFile,
			ManifestFile:   DefaultManifestFile,
			LockFile:       DefaultLockFile,
		},
		Oracle: OracleConfig{
			Strategy:    DefaultOracleStrategy,
			GuardDigits: DefaultGuardDigits,
			Prefetch:    DefaultOraclePrefetch,
		},
		Verify: VerifyConfig{
			Algorithm: DefaultVerifyAlgorithm,
			ChunkSize: DefaultVerifyChunkSize,
		},
		Hex: HexConfig{
			Digits:    DefaultHexDigits,
			Precision: DefaultHexPrecision,
		},
		Archive: ArchiveConfig{
			Enabled: DefaultArchiveEnabled,
			Codec:   DefaultArchiveCodec,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
