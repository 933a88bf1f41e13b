package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <reference|file>...",
		Short: "Remove attachments from the ticket form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := ctx.ticket()
			if err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd, ticket)
			ws, err := ctx.openWorkspace(runCtx, ticket)
			if err != nil {
				return err
			}
			defer ws.close()

			if err := ws.coordinator.Restore(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, target := range args {
				id := ""
				for _, task := range ws.coordinator.Tasks() {
					if task.State.Reference == target || task.FileName == target {
						id = task.ID
						break
					}
				}
				if id == "" {
					return fmt.Errorf("no attachment matches %q on ticket %s", target, ticket)
				}
				if err := ws.coordinator.Remove(id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %s\n", target)
			}
			return ws.save(runCtx)
		},
	}
}
