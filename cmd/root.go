// Package cmd implements the wirehttp CLI: one cobra root command with
// exchange, history, serve, and monitor subcommands, following the
// teacher's cmd/ idiom of one file per subcommand, each registering itself
// onto rootCmd from its own init().
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wirehttp",
	Short: "wirehttp drives single HTTP/1.1 exchanges over a hand-rolled client stack",
	Long: `wirehttp performs one HTTP/1.1 exchange at a time through its own
TaskRunner-scheduled client and codec stack, logs every exchange to local
history, and can run as a small daemon with a live TUI monitor.`,
}

// Execute runs the root command; main calls this and exits non-zero on
// error, matching the teacher's cmd.Execute() entry point shape.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
