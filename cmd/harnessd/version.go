package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentharness/harness/internal/buildinfo"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(buildinfo.Current().String())
			return nil
		},
	}
}
