package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinytalk/tinytalk/pkg/bytecode"
)

func newDisassembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "disassemble <image-file>",
		Aliases: []string{"disasm"},
		Short:   "Print a human-readable dump of a bytecode image",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()

			blob, err := bytecode.Decode(f)
			if err != nil {
				return err
			}
			return bytecode.Disassemble(os.Stdout, blob)
		},
	}
}
