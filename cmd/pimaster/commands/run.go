package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pimaster/internal/observability"
	"github.com/Sumatoshi-tech/pimaster/internal/pipeline"
	"github.com/Sumatoshi-tech/pimaster/internal/report"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/version"
)

// NewRunCommand creates the generation command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate decimal digits of pi, resuming from the last checkpoint",
		Long: `Generate decimal digits of pi block by block into decimal segment files and a
packed binary stream. Progress is checkpointed periodically; an interrupted run
(Ctrl-C, SIGTERM or a crash) continues from the last checkpoint on the next
invocation. After the last block the binary stream is digested, optionally
archived, and an independent hexadecimal excerpt is written.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	registerConfigFlag(cmd)
	registerRunFlags(cmd)

	return cmd
}

func registerRunFlags(cmd *cobra.Command) {
	def := config.Default()
	fs := cmd.Flags()

	fs.Uint64("total-digits", def.Generation.TotalDigits, "Number of fractional digits to generate")
	fs.Uint64("block-size", def.Generation.BlockSize, "Digits per block")
	fs.Int("digits-per-line", def.Generation.DigitsPerLine, "Decimal line width")
	fs.Duration("checkpoint-interval", def.Generation.CheckpointInterval, "Minimum time between checkpoints")
	fs.String("oracle", def.Oracle.Strategy, "Oracle strategy: recompute, memoize")
	fs.Bool("prefetch", def.Oracle.Prefetch, "Compute all digits up front (memoize only)")
	fs.String("digest", def.Verify.Algorithm, "Digest algorithm: sha256, blake3")
	fs.Int("hex-digits", def.Hex.Digits, "Hexadecimal digits to extract (0 = skip)")
	fs.String("hex-precision", def.Hex.Precision, "Hex extractor precision: float, fixed")
	fs.Bool("archive", def.Archive.Enabled, "Write a compressed copy of the binary stream")
	fs.String("archive-codec", def.Archive.Codec, "Archive codec: lz4, zstd")

	registerOutputFlags(fs)
	registerLoggingFlags(fs)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	sess, err := startSession(cmd, observability.ModeRun)
	if err != nil {
		return err
	}

	defer sess.close()

	metrics, err := observability.NewRunMetrics(sess.providers.Meter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	orch, err := pipeline.New(pipeline.Options{
		Config:   sess.cfg,
		Logger:   sess.providers.Logger,
		Reporter: report.NewConsole(out, isTerminal(out)),
		Metrics:  metrics,
		Tracer:   sess.providers.Tracer,
		Version:  version.Version,
	})
	if err != nil {
		return err
	}

	res, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, report.RenderSummary(summaryOf(res)))

	return nil
}

func summaryOf(res pipeline.Result) report.Summary {
	s := report.Summary{
		Digits:          res.Digits,
		Iterations:      res.Iterations,
		Resumed:         res.Resumed,
		Elapsed:         time.Duration(res.Elapsed * float64(time.Second)),
		BinaryBytes:     res.Offsets.BinaryBytes,
		Segments:        res.Segments,
		DigestAlgorithm: res.DigestAlgorithm,
		Digest:          res.Digest,
		HexDigits:       res.HexDigits,
	}

	if res.Archive != nil {
		s.ArchivePath = res.Archive.Path
		s.ArchiveBytes = res.Archive.OutputBytes
	}

	return s
}
