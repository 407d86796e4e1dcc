package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pimaster/internal/archive"
	"github.com/Sumatoshi-tech/pimaster/internal/checkpoint"
	"github.com/Sumatoshi-tech/pimaster/internal/inspect"
	"github.com/Sumatoshi-tech/pimaster/internal/observability"
	"github.com/Sumatoshi-tech/pimaster/internal/pipeline"
	"github.com/Sumatoshi-tech/pimaster/internal/writer"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
)

// ErrNothingGenerated is returned when the output directory has no digits yet.
var ErrNothingGenerated = errors.New("no digits have been generated")

const defaultInspectCount = 50

// InspectCommand holds the options of the inspect command.
type InspectCommand struct {
	start       uint64
	count       int
	fromArchive bool
	compare     bool
	manifest    bool
}

// NewInspectCommand creates the command that reads digits back from a run.
func NewInspectCommand() *cobra.Command {
	ic := &InspectCommand{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print digits stored in the binary stream",
		Long: `Decode a range of digits from the packed binary stream (or its archive) and
print it. Index 0 is the first digit after the decimal point. With --compare the
same range is read from the decimal segments and any difference is an error.

Digits dropped from odd-length lines of the binary stream print as '?'.`,
		Args: cobra.NoArgs,
		RunE: ic.run,
	}

	registerConfigFlag(cmd)
	cmd.Flags().Uint64Var(&ic.start, "start", 0, "Index of the first digit")
	cmd.Flags().IntVarP(&ic.count, "count", "n", defaultInspectCount, "Number of digits")
	cmd.Flags().BoolVar(&ic.fromArchive, "from-archive", false, "Read the compressed archive instead of the binary stream")
	cmd.Flags().BoolVar(&ic.compare, "compare", false, "Check the digits against the decimal segments")
	cmd.Flags().BoolVar(&ic.manifest, "manifest", false, "Also print the manifest of the last completed run")
	cmd.Flags().String("archive-codec", config.Default().Archive.Codec, "Archive codec: lz4, zstd")
	registerOutputFlags(cmd.Flags())
	registerLoggingFlags(cmd.Flags())

	return cmd
}

func (ic *InspectCommand) run(cmd *cobra.Command, _ []string) error {
	sess, err := startSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer sess.close()

	cfg := sess.cfg
	out := cmd.OutOrStdout()

	cp, err := checkpoint.NewStore(cfg.Output.CheckpointPath()).Load()
	if err != nil {
		return err
	}

	if cp.Digits == 0 {
		return fmt.Errorf("%w in %s", ErrNothingGenerated, cfg.Output.BaseDir)
	}

	digits, err := ic.readBinary(cfg, cp.Digits)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, digits)

	if ic.compare {
		decimal, readErr := inspect.ReadDecimal(writer.LayoutFromConfig(cfg), ic.start, ic.count)
		if readErr != nil {
			return readErr
		}

		cmpErr := inspect.Compare(ic.start, digits, decimal)
		if cmpErr != nil {
			return cmpErr
		}

		fmt.Fprintf(out, "decimal segments match (%d digits)\n", len(decimal))
	}

	if ic.manifest {
		return printManifest(out, cfg.Output)
	}

	return nil
}

func (ic *InspectCommand) readBinary(cfg config.Config, total uint64) (string, error) {
	var (
		src io.ReadCloser
		err error
	)

	if ic.fromArchive {
		path, pathErr := archive.Path(cfg.Output.BinaryPath(), cfg.Archive.Codec)
		if pathErr != nil {
			return "", pathErr
		}

		src, err = archive.Open(path)
	} else {
		src, err = os.Open(cfg.Output.BinaryPath())
	}

	if err != nil {
		return "", err
	}

	defer src.Close()

	return inspect.NewLocator(cfg, total).Read(src, ic.start, ic.count)
}

func printManifest(out io.Writer, oc config.OutputConfig) error {
	m, err := pipeline.ReadManifest(oc)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "no manifest: the run has not completed")

		return nil
	}

	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(m)
}
