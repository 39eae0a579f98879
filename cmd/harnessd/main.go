// Command harnessd is the harness daemon: it boots the durable store, the
// PTY Supervisor, the orchestration gate, the session timeout sweeper,
// startup recovery, and the HTTP operation surface, then serves until
// signaled to stop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "harnessd",
		Short:         "Multi-session orchestration harness daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}
