package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pimaster/internal/hexpi"
	"github.com/Sumatoshi-tech/pimaster/internal/observability"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
)

// NewHexCommand creates the BBP hexadecimal extraction command.
func NewHexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hex",
		Short: "Extract hexadecimal digits of pi with the BBP formula",
		Long: `Extract leading hexadecimal digits of pi with the Bailey-Borwein-Plouffe
formula, independently of the decimal run, and write them as "3." followed by
the digits.

The float extractor is only reliable for about a dozen digits; use
--hex-precision fixed for longer excerpts.`,
		Args: cobra.NoArgs,
		RunE: runHex,
	}

	def := config.Default()

	registerConfigFlag(cmd)
	cmd.Flags().Int("hex-digits", def.Hex.Digits, "Hexadecimal digits to extract")
	cmd.Flags().String("hex-precision", def.Hex.Precision, "Extractor precision: float, fixed")
	registerOutputFlags(cmd.Flags())
	registerLoggingFlags(cmd.Flags())

	return cmd
}

func runHex(cmd *cobra.Command, _ []string) error {
	sess, err := startSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer sess.close()

	hc := sess.cfg.Hex
	logger := sess.providers.Logger

	if hc.Precision == config.HexFloat && hc.Digits > hexpi.SafeFloatDigits {
		logger.Warn("hex: float precision is unreliable beyond a few digits",
			"digits", hc.Digits, "reliable", hexpi.SafeFloatDigits)
	}

	digits, err := hexpi.Extract(cmd.Context(), hc.Digits, hc.Precision)
	if err != nil {
		return err
	}

	err = sess.cfg.Output.EnsureDirs()
	if err != nil {
		return err
	}

	path := sess.cfg.Output.HexPath()

	err = hexpi.Write(path, digits)
	if err != nil {
		return err
	}

	logger.Info("hex: excerpt written", "digits", len(digits), "precision", hc.Precision, "path", path)

	fmt.Fprintf(cmd.OutOrStdout(), "3.%s\n", digits)

	return nil
}
