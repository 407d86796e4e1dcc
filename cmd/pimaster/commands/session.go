// Package commands implements CLI command handlers for pimaster.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Sumatoshi-tech/pimaster/internal/observability"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/version"
)

const configFlag = "config"

// registerConfigFlag adds --config to cmd.
func registerConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP(configFlag, "c", "", "Config file (default: ./pimaster.yaml or /etc/pimaster/pimaster.yaml)")
}

// registerOutputFlags adds the flags locating an output directory.
func registerOutputFlags(fs *pflag.FlagSet) {
	def := config.Default()

	fs.String("base-dir", def.Output.BaseDir, "Output directory")
}

// registerLoggingFlags adds the logging and metrics flags.
func registerLoggingFlags(fs *pflag.FlagSet) {
	def := config.Default()

	fs.String("log-level", def.Logging.Level, "Log level: debug, info, warn, error")
	fs.String("log-format", def.Logging.Format, "Log format: auto, text, json")
	fs.String("log-file", "", "Also write JSON logs to this file")
	fs.String("metrics-textfile", "", "Write Prometheus metrics to this file on exit")
}

// loadConfig resolves the configuration for cmd: defaults, then the config
// file, then PIMASTER_* variables, then flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return config.Config{}, fmt.Errorf("read --%s: %w", configFlag, err)
	}

	return config.LoadConfigWithFlags(path, cmd.Flags())
}

// session is the configuration and telemetry shared by one command invocation.
type session struct {
	cfg       config.Config
	providers observability.Providers
}

func startSession(cmd *cobra.Command, mode observability.AppMode) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	obsCfg, err := observability.FromAppConfig(cfg, mode, version.Version)
	if err != nil {
		return nil, err
	}

	obsCfg.Stderr = cmd.ErrOrStderr()

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &session{cfg: cfg, providers: providers}, nil
}

func (s *session) close() {
	shutdownErr := s.providers.Shutdown(context.Background())
	if shutdownErr != nil {
		s.providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}

// isTerminal reports whether out is an interactive terminal.
func isTerminal(out any) bool {
	f, ok := out.(*os.File)

	return ok && term.IsTerminal(int(f.Fd()))
}
