package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// newRootCmd builds the command tree. --debug raises every command's log
// level; serve also honours LOG_LEVEL.
func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:          "frameit",
		Short:        "Place a photo or video inside a frame and export it",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := log.InfoLevel
			if debug {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose debug logging")

	root.AddCommand(newServeCmd(&debug))
	root.AddCommand(newComposeCmd())
	root.AddCommand(newProbeCmd())
	return root
}
