package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pimaster/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pimaster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, uint64(100_000_000), cfg.Generation.TotalDigits)
	assert.Equal(t, uint64(1_000_000), cfg.Generation.BlockSize)
	assert.Equal(t, 50, cfg.Generation.DigitsPerLine)
	assert.Equal(t, uint64(5_000_000), cfg.Generation.SegmentDigits)
	assert.Equal(t, 120*time.Second, cfg.Generation.CheckpointInterval)
	assert.Equal(t, 20, cfg.Oracle.GuardDigits)
	assert.Equal(t, "sha256", cfg.Verify.Algorithm)
	assert.Equal(t, 100_000, cfg.Hex.Digits)
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `generation:
  total_digits: 10
  block_size: 5
  digits_per_line: 7
  checkpoint_interval: 30s
output:
  base_dir: /tmp/pi
oracle:
  strategy: memoize
verify:
  algorithm: blake3
  chunk_size: 64KiB
hex:
  digits: 16
  precision: fixed
archive:
  enabled: true
  codec: zstd
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), cfg.Generation.TotalDigits)
	assert.Equal(t, uint64(5), cfg.Generation.BlockSize)
	assert.Equal(t, 7, cfg.Generation.DigitsPerLine)
	assert.Equal(t, 30*time.Second, cfg.Generation.CheckpointInterval)
	assert.Equal(t, "/tmp/pi", cfg.Output.BaseDir)
	assert.Equal(t, config.OracleMemoize, cfg.Oracle.Strategy)
	assert.Equal(t, "blake3", cfg.Verify.Algorithm)
	assert.Equal(t, 16, cfg.Hex.Digits)
	assert.Equal(t, config.HexFixed, cfg.Hex.Precision)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "zstd", cfg.Archive.Codec)

	chunk, err := cfg.Verify.ChunkBytes()
	require.NoError(t, err)
	assert.Equal(t, 64*1024, chunk)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("PIMASTER_GENERATION_TOTAL_DIGITS", "12345")
	t.Setenv("PIMASTER_OUTPUT_BASE_DIR", "/var/lib/pi")

	cfg, err := config.LoadConfig(writeConfig(t, "generation:\n  total_digits: 10\n"))
	require.NoError(t, err)

	assert.Equal(t, uint64(12345), cfg.Generation.TotalDigits)
	assert.Equal(t, "/var/lib/pi", cfg.Output.BaseDir)
}

func TestLoadConfigWithFlags_ChangedFlagWins(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("total-digits", 0, "")
	flags.Uint64("block-size", 0, "")
	flags.String("oracle", "", "")

	require.NoError(t, flags.Parse([]string{"--total-digits=42", "--oracle=memoize"}))

	cfg, err := config.LoadConfigWithFlags(writeConfig(t, "generation:\n  total_digits: 10\n"), flags)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), cfg.Generation.TotalDigits)
	assert.Equal(t, config.OracleMemoize, cfg.Oracle.Strategy)
	assert.Equal(t, uint64(config.DefaultBlockSize), cfg.Generation.BlockSize, "unchanged flag must not override")
}

func TestLoadConfig_ExplicitPathNotFound(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "generation: [unclosed"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "generation:\n  block_size: 0\n"))
	require.ErrorIs(t, err, config.ErrInvalidBlockSize)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"total_digits", func(c *config.Config) { c.Generation.TotalDigits = 0 }, config.ErrInvalidTotalDigits},
		{"line_width", func(c *config.Config) { c.Generation.DigitsPerLine = 0 }, config.ErrInvalidLineWidth},
		{"segment", func(c *config.Config) { c.Generation.SegmentDigits = 0 }, config.ErrInvalidSegment},
		{"interval", func(c *config.Config) { c.Generation.CheckpointInterval = -time.Second }, config.ErrInvalidInterval},
		{"guard", func(c *config.Config) { c.Oracle.GuardDigits = -1 }, config.ErrInvalidGuard},
		{"strategy", func(c *config.Config) { c.Oracle.Strategy = "incremental" }, config.ErrInvalidStrategy},
		{"algorithm", func(c *config.Config) { c.Verify.Algorithm = "md5" }, config.ErrInvalidAlgorithm},
		{"chunk_size", func(c *config.Config) { c.Verify.ChunkSize = "lots" }, config.ErrInvalidChunkSize},
		{"hex", func(c *config.Config) { c.Hex.Precision = "quad" }, config.ErrInvalidHex},
		{"archive", func(c *config.Config) { c.Archive.Codec = "gzip" }, config.ErrInvalidArchive},
		{"log_level", func(c *config.Config) { c.Logging.Level = "loud" }, config.ErrInvalidLogging},
		{"log_format", func(c *config.Config) { c.Logging.Format = "xml" }, config.ErrInvalidLogging},
		{"output", func(c *config.Config) { c.Output.BaseDir = "" }, config.ErrInvalidOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			tt.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	require.NoError(t, config.Default().Validate())
}

func TestOutputConfig_Paths(t *testing.T) {
	t.Parallel()

	out := config.Default().Output
	out.BaseDir = "/data/pi"
	out.DigestFile = "/elsewhere/digest.txt"

	assert.Equal(t, "/data/pi/pi.bin", out.BinaryPath())
	assert.Equal(t, "/data/pi/decimal", out.DecimalPath())
	assert.Equal(t, "/data/pi/checkpoint.txt", out.CheckpointPath())
	assert.Equal(t, "/data/pi/pi_hex_bbp.txt", out.HexPath())
	assert.Equal(t, "/elsewhere/digest.txt", out.DigestPath())
}

func TestOutputConfig_EnsureDirs(t *testing.T) {
	t.Parallel()

	out := config.Default().Output
	out.BaseDir = filepath.Join(t.TempDir(), "nested", "pi")

	require.NoError(t, out.EnsureDirs())
	assert.DirExists(t, out.DecimalPath())

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	out.BaseDir = filepath.Join(blocker, "sub")
	require.ErrorIs(t, out.EnsureDirs(), config.ErrOutputDir)
}

func TestLoggingConfig_SlogLevel(t *testing.T) {
	t.Parallel()

	level, err := config.LoggingConfig{Level: "debug"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}
