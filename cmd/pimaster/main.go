// Package main provides the entry point for the pimaster CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pimaster/cmd/pimaster/commands"
	"github.com/Sumatoshi-tech/pimaster/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "pimaster",
		Short: "Pimaster - resumable generation of the decimal digits of pi",
		Long: `Pimaster computes decimal digits of pi in blocks, writing them to segmented
text files and a packed binary stream, with crash-safe checkpoints.

Commands:
  run       Generate digits (resumes from the last checkpoint)
  verify    Digest the binary stream, or check it against the record
  hex       Extract hexadecimal digits with the BBP formula
  inspect   Decode stored digits and compare outputs
  config    Print the effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewVerifyCommand())
	rootCmd.AddCommand(commands.NewHexCommand())
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
