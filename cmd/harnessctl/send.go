package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var noEnter bool
	cmd := &cobra.Command{
		Use:   "send <id|slot> <input...>",
		Short: "Send input to a session's live child",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pressEnter := !noEnter
			req := map[string]any{
				"input":      strings.Join(args[1:], " "),
				"pressEnter": pressEnter,
			}
			var resp struct {
				Delivered bool `json:"delivered"`
			}
			if err := activeClient.post("/sessions/"+args[0]+"/input", req, &resp); err != nil {
				return err
			}
			if !resp.Delivered {
				fmt.Println(colorize(colorYellow, "not delivered: session has no live child"))
				return nil
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noEnter, "no-enter", false, "do not press enter after sending the input")
	return cmd
}
