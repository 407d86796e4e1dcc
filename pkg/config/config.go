// Package config provides configuration loading and validation for pimaster.
//
// Values are resolved once at startup (defaults, then an optional YAML file,
// then PIMASTER_* environment variables, then command-line flags) into an
// immutable Config that is passed by value to every component.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidTotalDigits = errors.New("total digits must be positive")
	ErrInvalidBlockSize   = errors.New("block size must be positive")
	ErrInvalidLineWidth   = errors.New("digits per line must be positive")
	ErrInvalidSegment     = errors.New("segment digits must be positive")
	ErrInvalidInterval    = errors.New("checkpoint interval must not be negative")
	ErrInvalidGuard       = errors.New("guard digits must not be negative")
	ErrInvalidStrategy    = errors.New("unknown oracle strategy")
	ErrInvalidAlgorithm   = errors.New("unknown digest algorithm")
	ErrInvalidChunkSize   = errors.New("invalid verify chunk size")
	ErrInvalidHex         = errors.New("invalid hex extractor settings")
	ErrInvalidArchive     = errors.New("unknown archive codec")
	ErrInvalidLogging     = errors.New("invalid logging settings")
	ErrInvalidOutput      = errors.New("invalid output settings")
	ErrOutputDir          = errors.New("cannot create output directory")
)

// envPrefix is the prefix for environment overrides (PIMASTER_GENERATION_TOTAL_DIGITS).
const envPrefix = "PIMASTER"

// dirPerm is the permission used for created output directories.
const dirPerm = 0o755

// Config holds all configuration for a pimaster run.
type Config struct {
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation"`
	Output     OutputConfig     `mapstructure:"output"     yaml:"output"`
	Oracle     OracleConfig     `mapstructure:"oracle"     yaml:"oracle"`
	Verify     VerifyConfig     `mapstructure:"verify"     yaml:"verify"`
	Hex        HexConfig        `mapstructure:"hex"        yaml:"hex"`
	Archive    ArchiveConfig    `mapstructure:"archive"    yaml:"archive"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// GenerationConfig controls the block loop and the output layout.
type GenerationConfig struct {
	TotalDigits        uint64        `mapstructure:"total_digits"        yaml:"total_digits"`
	BlockSize          uint64        `mapstructure:"block_size"          yaml:"block_size"`
	DigitsPerLine      int           `mapstructure:"digits_per_line"     yaml:"digits_per_line"`
	SegmentDigits      uint64        `mapstructure:"segment_digits"      yaml:"segment_digits"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
}

// OutputConfig names the persisted files. Relative names resolve against BaseDir.
type OutputConfig struct {
	BaseDir        string `mapstructure:"base_dir"        yaml:"base_dir"`
	DecimalDir     string `mapstructure:"decimal_dir"     yaml:"decimal_dir"`
	BinaryFile     string `mapstructure:"binary_file"     yaml:"binary_file"`
	CheckpointFile string `mapstructure:"checkpoint_file" yaml:"checkpoint_file"`
	DigestFile     string `mapstructure:"digest_file"     yaml:"digest_file"`
	HexFile        string `mapstructure:"hex_file"        yaml:"hex_file"`
	ManifestFile   string `mapstructure:"manifest_file"   yaml:"manifest_file"`
	LockFile       string `mapstructure:"lock_file"       yaml:"lock_file"`
}

// OracleConfig selects how digit blocks are obtained from the evaluator.
type OracleConfig struct {
	Strategy    string `mapstructure:"strategy"     yaml:"strategy"`
	GuardDigits int    `mapstructure:"guard_digits" yaml:"guard_digits"`
	Prefetch    bool   `mapstructure:"prefetch"     yaml:"prefetch"`
}

// VerifyConfig controls the integrity digest.
type VerifyConfig struct {
	Algorithm string `mapstructure:"algorithm"  yaml:"algorithm"`
	ChunkSize string `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// HexConfig controls the independent BBP hexadecimal excerpt.
type HexConfig struct {
	Digits    int    `mapstructure:"digits"    yaml:"digits"`
	Precision string `mapstructure:"precision" yaml:"precision"`
}

// ArchiveConfig controls the optional compressed copy of the binary stream.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Codec   string `mapstructure:"codec"   yaml:"codec"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file"   yaml:"file"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"total-digits":        "generation.total_digits",
	"block-size":          "generation.block_size",
	"digits-per-line":     "generation.digits_per_line",
	"checkpoint-interval": "generation.checkpoint_interval",
	"base-dir":            "output.base_dir",
	"oracle":              "oracle.strategy",
	"prefetch":            "oracle.prefetch",
	"digest":              "verify.algorithm",
	"hex-digits":          "hex.digits",
	"hex-precision":       "hex.precision",
	"archive":             "archive.enabled",
	"archive-codec":       "archive.codec",
	"log-level":           "logging.level",
	"log-format":          "logging.format",
	"log-file":            "logging.file",
	"metrics-textfile":    "metrics.textfile",
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (Config, error) {
	return LoadConfigWithFlags(configPath, nil)
}

// LoadConfigWithFlags loads configuration like LoadConfig and additionally
// applies any flag in flags that the user explicitly set.
func LoadConfigWithFlags(configPath string, flags *pflag.FlagSet) (Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("pimaster")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/pimaster")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindErr := bindFlags(viperCfg, flags)
	if bindErr != nil {
		return Config{}, bindErr
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return Config{}, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return config, nil
}

func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}

		err := viperCfg.BindPFlag(key, flag)
		if err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	def := Default()

	// Generation defaults.
	viperCfg.SetDefault("generation.total_digits", def.Generation.TotalDigits)
	viperCfg.SetDefault("generation.block_size", def.Generation.BlockSize)
	viperCfg.SetDefault("generation.digits_per_line", def.Generation.DigitsPerLine)
	viperCfg.SetDefault("generation.segment_digits", def.Generation.SegmentDigits)
	viperCfg.SetDefault("generation.checkpoint_interval", def.Generation.CheckpointInterval.String())

	// Output defaults.
	viperCfg.SetDefault("output.base_dir", def.Output.BaseDir)
	viperCfg.SetDefault("output.decimal_dir", def.Output.DecimalDir)
	viperCfg.SetDefault("output.binary_file", def.Output.BinaryFile)
	viperCfg.SetDefault("output.checkpoint_file", def.Output.CheckpointFile)
	viperCfg.SetDefault("output.digest_file", def.Output.DigestFile)
	viperCfg.SetDefault("output.hex_file", def.Output.HexFile)
	viperCfg.SetDefault("output.manifest_file", def.Output.ManifestFile)
	viperCfg.SetDefault("output.lock_file", def.Output.LockFile)

	// Oracle defaults.
	viperCfg.SetDefault("oracle.strategy", def.Oracle.Strategy)
	viperCfg.SetDefault("oracle.guard_digits", def.Oracle.GuardDigits)
	viperCfg.SetDefault("oracle.prefetch", def.Oracle.Prefetch)

	// Verify defaults.
	viperCfg.SetDefault("verify.algorithm", def.Verify.Algorithm)
	viperCfg.SetDefault("verify.chunk_size", def.Verify.ChunkSize)

	// Hex defaults.
	viperCfg.SetDefault("hex.digits", def.Hex.Digits)
	viperCfg.SetDefault("hex.precision", def.Hex.Precision)

	// Archive defaults.
	viperCfg.SetDefault("archive.enabled", def.Archive.Enabled)
	viperCfg.SetDefault("archive.codec", def.Archive.Codec)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", def.Logging.Level)
	viperCfg.SetDefault("logging.format", def.Logging.Format)
	viperCfg.SetDefault("logging.file", "")

	// Metrics defaults.
	viperCfg.SetDefault("metrics.textfile", "")
}

// Validate checks the configuration for values no component can work with.
func (c Config) Validate() error {
	gen := c.Generation

	if gen.TotalDigits == 0 {
		return ErrInvalidTotalDigits
	}

	if gen.BlockSize == 0 {
		return ErrInvalidBlockSize
	}

	if gen.DigitsPerLine <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLineWidth, gen.DigitsPerLine)
	}

	if gen.SegmentDigits == 0 {
		return ErrInvalidSegment
	}

	if gen.CheckpointInterval < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, gen.CheckpointInterval)
	}

	if c.Output.BaseDir == "" || c.Output.BinaryFile == "" || c.Output.CheckpointFile == "" {
		return fmt.Errorf("%w: base_dir, binary_file and checkpoint_file are required", ErrInvalidOutput)
	}

	if c.Oracle.GuardDigits < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGuard, c.Oracle.GuardDigits)
	}

	if c.Oracle.Strategy != OracleRecompute && c.Oracle.Strategy != OracleMemoize {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, c.Oracle.Strategy)
	}

	if !isDigestAlgorithm(c.Verify.Algorithm) {
		return fmt.Errorf("%w: %q", ErrInvalidAlgorithm, c.Verify.Algorithm)
	}

	_, chunkErr := c.Verify.ChunkBytes()
	if chunkErr != nil {
		return chunkErr
	}

	if c.Hex.Digits < 0 || (c.Hex.Precision != HexFloat && c.Hex.Precision != HexFixed) {
		return fmt.Errorf("%w: digits=%d precision=%q", ErrInvalidHex, c.Hex.Digits, c.Hex.Precision)
	}

	if c.Archive.Codec != "lz4" && c.Archive.Codec != "zstd" {
		return fmt.Errorf("%w: %q", ErrInvalidArchive, c.Archive.Codec)
	}

	return c.Logging.validate()
}

func isDigestAlgorithm(name string) bool {
	return name == "sha256" || name == "blake3"
}

// ChunkBytes parses ChunkSize ("1MiB", "4 MB", "65536").
func (v VerifyConfig) ChunkBytes() (int, error) {
	n, err := humanize.ParseBytes(v.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidChunkSize, v.ChunkSize, err)
	}

	if n == 0 || n > humanize.GiByte {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidChunkSize, v.ChunkSize)
	}

	return int(n), nil
}

// SlogLevel parses Level into a slog level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: level %q", ErrInvalidLogging, l.Level)
	}

	return level, nil
}

func (l LoggingConfig) validate() error {
	_, err := l.SlogLevel()
	if err != nil {
		return err
	}

	switch l.Format {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
		return nil
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidLogging, l.Format)
	}
}

// Path resolves a configured file name against the base directory.
func (o OutputConfig) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(o.BaseDir, name)
}

// DecimalPath returns the directory holding the decimal segment files.
func (o OutputConfig) DecimalPath() string { return o.Path(o.DecimalDir) }

// BinaryPath returns the packed binary stream path.
func (o OutputConfig) BinaryPath() string { return o.Path(o.BinaryFile) }

// CheckpointPath returns the checkpoint record path.
func (o OutputConfig) CheckpointPath() string { return o.Path(o.CheckpointFile) }

// DigestPath returns the digest record path.
func (o OutputConfig) DigestPath() string { return o.Path(o.DigestFile) }

// HexPath returns the hex excerpt record path.
func (o OutputConfig) HexPath() string { return o.Path(o.HexFile) }

// LockPath returns the run lock path.
func (o OutputConfig) LockPath() string { return o.Path(o.LockFile) }

// EnsureDirs creates the base and decimal directories.
func (o OutputConfig) EnsureDirs() error {
	for _, dir := range []string{o.BaseDir, o.DecimalPath()} {
		err := os.MkdirAll(dir, dirPerm)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrOutputDir, dir, err)
		}
	}

	return nil
}
