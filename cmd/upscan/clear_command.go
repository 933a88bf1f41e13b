package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"upscan/internal/draft"
)

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored draft of a ticket form",
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := ctx.ticket()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := draft.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Clear(ctx.runContext(cmd, ticket), ticket)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Draft for ticket %s removed: %s\n", ticket, yesNo(removed))
			return nil
		},
	}
}
