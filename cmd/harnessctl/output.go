package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func outputCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "output <id|slot>",
		Short: "Print a session's recent output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/sessions/" + args[0] + "/output?lines=" + strconv.Itoa(lines)
			var resp struct {
				Output    string `json:"output"`
				LineCount int    `json:"lineCount"`
			}
			if err := activeClient.get(path, &resp); err != nil {
				return err
			}
			fmt.Print(resp.Output)
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to fetch")
	return cmd
}
