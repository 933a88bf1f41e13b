package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"upscan/internal/draft"
)

type attachmentView struct {
	FileName  string `json:"fileName"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type draftView struct {
	TicketID  string `json:"ticketId"`
	Fields    int    `json:"fields"`
	UpdatedAt string `json:"updatedAt"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var formOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the attachments of a ticket form, or every stored draft without --ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.ticketFlag == nil || *ctx.ticketFlag == "" {
				return listDrafts(cmd, ctx, jsonOutput)
			}
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

			if formOutput {
				if jsonOutput {
					return writeJSON(cmd, ws.fields.Values())
				}
				_, err := cmd.OutOrStdout().Write([]byte(ws.fields.Encode() + "\n"))
				return err
			}
			if err := ws.coordinator.Restore(); err != nil {
				return err
			}
			tasks := ws.coordinator.Tasks()
			if jsonOutput {
				views := make([]attachmentView, 0, len(tasks))
				for _, task := range tasks {
					views = append(views, attachmentView{
						FileName:  task.FileName,
						Reference: task.State.Reference,
						Status:    string(task.State.Status),
					})
				}
				return writeJSON(cmd, views)
			}
			writeRows(cmd.OutOrStdout(), taskHeaders, taskRows(tasks), taskAligns)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&formOutput, "form", false, "Print the form fields as an urlencoded body (a name to values object with --json)")
	return cmd
}

func listDrafts(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := draft.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	views := make([]draftView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, draftView{
			TicketID:  summary.TicketID,
			Fields:    summary.Fields,
			UpdatedAt: summary.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	if jsonOutput {
		return writeJSON(cmd, views)
	}
	rows := make([][]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, []string{view.TicketID, strconv.Itoa(view.Fields), view.UpdatedAt})
	}
	out := cmd.OutOrStdout()
	writeRows(out, []string{"Ticket", "Fields", "Updated"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft})
	fmt.Fprintf(out, "%s in %s\n", pluralize(len(views), "draft", "drafts"), store.Path())
	return nil
}
