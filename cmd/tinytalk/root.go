package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tinytalk/tinytalk/internal/config"
	"github.com/tinytalk/tinytalk/internal/xlog"
)

var (
	configPath string
	verbose    bool
	log        xlog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tinytalk",
		Short: "Run and inspect tinytalk bytecode images",
		Long: `tinytalk hosts the object-image runtime: it loads a bit-exact
bytecode image, executes it, and can disassemble one for inspection.
Producing that bytecode (the source-level compiler) is out of scope.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := xlog.LevelInfo
			if verbose {
				level = xlog.LevelDebug
			}
			log = xlog.New(level, os.Stderr)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to image configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(), newDisassembleCmd(), newVersionCmd())
	return root
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
