// Command harnessctl is the coordinator-facing client for harnessd: it
// talks to the operation surface's HTTP API (and, for attach, its
// WebSocket bridge) and never touches the durable store or a PTY
// directly.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

var useColor = isatty.IsTerminal(os.Stdout.Fd())

func colorize(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + colorReset
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", colorize(colorRed, "Error:"), err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:           "harnessctl",
		Short:         "Client for the harness daemon's operation surface",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", defaultAddr(), "harnessd operation surface address")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		newClientFromFlag(addr)
		return nil
	}

	cmd.AddCommand(sessionsCmd())
	cmd.AddCommand(outputCmd())
	cmd.AddCommand(sendCmd())
	cmd.AddCommand(attachCmd())
	cmd.AddCommand(waitCmd())
	cmd.AddCommand(projectCmd())
	return cmd
}

func defaultAddr() string {
	if v := os.Getenv("HARNESSCTL_ADDR"); v != "" {
		return v
	}
	return "http://127.0.0.1:8787"
}
