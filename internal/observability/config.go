// Package observability provides OpenTelemetry-based tracing, metrics and
// structured logging for pimaster commands.
package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/pimaster/pkg/config"
)

// AppMode identifies the command the process was launched for.
type AppMode string

const (
	// ModeRun is the long-running generation command.
	ModeRun AppMode = "run"
	// ModeCLI covers the short utility commands.
	ModeCLI AppMode = "cli"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "pimaster"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Log output formats.
const (
	FormatAuto = config.LogFormatAuto
	FormatText = config.LogFormatText
	FormatJSON = config.LogFormatJSON
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables OTLP export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0).
	// Zero keeps the parent-based always-on default.
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogFormat is auto, text or json. Auto picks text on a terminal.
	LogFormat string

	// LogFile, when set, receives a JSON copy of every record.
	LogFile string

	// MetricsTextfile, when set, receives a Prometheus text exposition of
	// all metrics on shutdown.
	MetricsTextfile string

	// Stderr is the console log destination. Nil means os.Stderr.
	Stderr io.Writer

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		LogFormat:          FormatAuto,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// FromAppConfig derives the observability settings from the run
// configuration and the standard OTEL_EXPORTER_OTLP_* environment variables.
func FromAppConfig(app config.Config, mode AppMode, version string) (Config, error) {
	level, err := app.Logging.SlogLevel()
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Mode = mode
	cfg.LogLevel = level
	cfg.LogFormat = app.Logging.Format
	cfg.LogFile = app.Logging.File
	cfg.MetricsTextfile = app.Metrics.Textfile
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTLPHeaders = ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	cfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"

	return cfg, nil
}
