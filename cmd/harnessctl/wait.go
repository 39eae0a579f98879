package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func waitCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait [id...]",
		Short: "Block until a watched session changes state",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"timeoutMs":  timeout.Milliseconds(),
				"sessionIds": args,
			}
			var resp struct {
				Change *struct {
					SessionID   string `json:"sessionId"`
					Kind        string `json:"kind"`
					WaitType    string `json:"waitType,omitempty"`
					MenuOptions int    `json:"menuOptions,omitempty"`
					Reason      string `json:"reason,omitempty"`
				} `json:"change"`
				Reason string `json:"reason,omitempty"`
			}
			if err := activeClient.post("/wait", req, &resp); err != nil {
				return err
			}
			if resp.Change == nil {
				fmt.Println(colorize(colorDim, resp.Reason))
				return nil
			}
			c := resp.Change
			switch c.Kind {
			case "completed":
				fmt.Printf("%s %s\n", colorize(colorGreen, "completed"), c.SessionID)
			case "failed":
				fmt.Printf("%s %s: %s\n", colorize(colorRed, "failed"), c.SessionID, c.Reason)
			case "waiting":
				fmt.Printf("%s %s (%s)\n", colorize(colorYellow, "waiting"), c.SessionID, c.WaitType)
			default:
				fmt.Printf("%s %s\n", c.Kind, c.SessionID)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to wait before giving up")
	return cmd
}
