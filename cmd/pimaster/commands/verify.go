package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pimaster/internal/observability"
	"github.com/Sumatoshi-tech/pimaster/internal/verify"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
)

// NewVerifyCommand creates the digest command.
func NewVerifyCommand() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Digest the binary stream",
		Long: `Digest the packed binary stream and write the digest record.

With --check the record is left untouched; the stream is digested again and
compared with it, and a difference is an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, check)
		},
	}

	registerConfigFlag(cmd)
	cmd.Flags().BoolVar(&check, "check", false, "Compare against the existing digest record instead of rewriting it")
	cmd.Flags().String("digest", config.Default().Verify.Algorithm, "Digest algorithm: sha256, blake3")
	registerOutputFlags(cmd.Flags())
	registerLoggingFlags(cmd.Flags())

	return cmd
}

func runVerify(cmd *cobra.Command, check bool) error {
	sess, err := startSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer sess.close()

	verifier, err := verify.New(sess.cfg.Verify, sess.providers.Logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := sess.cfg.Output

	if check {
		sum, checkErr := verifier.Check(ctx, out.BinaryPath(), out.DigestPath())
		if checkErr != nil {
			return checkErr
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK %s  %s\n", sum, out.BinaryPath())

		return nil
	}

	sum, err := verifier.Verify(ctx, out.BinaryPath(), out.DigestPath())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, out.BinaryPath())

	return nil
}
