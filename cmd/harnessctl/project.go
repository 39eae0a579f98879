package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project-level operations",
	}
	cmd.AddCommand(projectSyncCmd())
	return cmd
}

func projectSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <root>",
		Short: "Reconcile the orchestration gate with what is on disk under root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"projectRoot": args[0]}
			var resp struct {
				HighestPlannedPhase  int `json:"highestPlannedPhase"`
				HighestExecutedPhase int `json:"highestExecutedPhase"`
				HighestVerifiedPhase int `json:"highestVerifiedPhase"`
				MaxPlanPhase         int `json:"maxPlanPhase"`
				PendingVerifyPhase   *int `json:"pendingVerifyPhase,omitempty"`
				MaxExecutePhase      *int `json:"maxExecutePhase,omitempty"`
			}
			if err := activeClient.post("/project/sync", req, &resp); err != nil {
				return err
			}
			fmt.Printf("planned=%d executed=%d verified=%d maxPlan=%d\n",
				resp.HighestPlannedPhase, resp.HighestExecutedPhase, resp.HighestVerifiedPhase, resp.MaxPlanPhase)
			if resp.PendingVerifyPhase != nil {
				fmt.Printf("pendingVerifyPhase=%d\n", *resp.PendingVerifyPhase)
			}
			if resp.MaxExecutePhase != nil {
				fmt.Printf("maxExecutePhase=%d\n", *resp.MaxExecutePhase)
			}
			return nil
		},
	}
	return cmd
}
