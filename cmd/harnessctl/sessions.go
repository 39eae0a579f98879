package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type sessionView struct {
	ID             string `json:"id"`
	Slot           int    `json:"slot"`
	Status         string `json:"status"`
	WorkingDir     string `json:"workingDir"`
	CurrentCommand string `json:"currentCommand"`
	StartedAt      string `json:"startedAt"`
	EndedAt        string `json:"endedAt,omitempty"`
	PID            int    `json:"pid,omitempty"`
	LastWaitType   string `json:"lastWaitType,omitempty"`
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, start, or end sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsStartCmd())
	cmd.AddCommand(sessionsEndCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/sessions"
			if filter != "" {
				path += "?filter=" + filter
			}
			var resp struct {
				Sessions  []sessionView `json:"sessions"`
				FreeSlots int           `json:"freeSlots"`
			}
			if err := activeClient.get(path, &resp); err != nil {
				return err
			}
			if len(resp.Sessions) == 0 {
				fmt.Println(colorize(colorDim, "no sessions"))
				return nil
			}
			for _, s := range resp.Sessions {
				fmt.Printf("%-3d %-36s %-20s %s\n", s.Slot, s.ID, statusColor(s.Status), s.CurrentCommand)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "running|completed|failed|all")
	return cmd
}

func statusColor(status string) string {
	switch status {
	case "running":
		return colorize(colorGreen, status)
	case "waiting_checkpoint":
		return colorize(colorYellow, status)
	case "failed":
		return colorize(colorRed, status)
	default:
		return status
	}
}

func sessionsStartCmd() *cobra.Command {
	var workingDir, command string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"workingDir": workingDir, "command": command}
			var resp struct {
				Session sessionView `json:"session"`
			}
			if err := activeClient.post("/sessions", req, &resp); err != nil {
				return err
			}
			fmt.Printf("%s slot=%d id=%s\n", colorize(colorGreen, "started"), resp.Session.Slot, resp.Session.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&workingDir, "dir", "", "working directory for the new session (required)")
	cmd.Flags().StringVar(&command, "command", "", "initial command to send once the session is ready")
	cmd.MarkFlagRequired("dir")
	return cmd
}

func sessionsEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end <id|slot>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				AlreadyEnded bool `json:"alreadyEnded"`
			}
			if err := activeClient.post("/sessions/"+args[0]+"/end", nil, &resp); err != nil {
				return err
			}
			if resp.AlreadyEnded {
				fmt.Println(colorize(colorDim, "session was already ended"))
				return nil
			}
			fmt.Println(colorize(colorGreen, "ended"))
			return nil
		},
	}
	return cmd
}
