// Command gostt-overlay is the voice capture and transcription pipeline of
// the overlay assistant: hotkey dictation, a local control API for the
// overlay UI, and whisper model management.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gostt-overlay",
		Short:         "Voice capture and transcription for the overlay assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/gostt-overlay/config.yaml)")

	root.AddCommand(
		listenCmd(),
		serveCmd(),
		modelsCmd(),
		transcribeCmd(),
		initCmd(),
		checkCmd(),
	)
	return root
}
