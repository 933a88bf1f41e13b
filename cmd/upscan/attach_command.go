package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"upscan/internal/logging"
	"upscan/internal/upload"
)

type selectedFile struct {
	path    string
	content []byte
}

func newAttachCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <file>...",
		Short: "Upload files through the intake service and attach them to the ticket form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := ctx.ticket()
			if err != nil {
				return err
			}
			files := make([]selectedFile, 0, len(args))
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, selectedFile{path: path, content: content})
			}

			runCtx := ctx.runContext(cmd, ticket)
			ws, err := ctx.openWorkspace(runCtx, ticket)
			if err != nil {
				return err
			}
			defer ws.close()

			if err := ws.coordinator.Start(runCtx); err != nil {
				return err
			}

			var skipped []string
			for _, file := range files {
				name := filepath.Base(file.path)
				_, err := ws.coordinator.Select(name, file.content)
				for errors.Is(err, upload.ErrSelectionDisabled) && ws.coordinator.InFlight() > 0 {
					ws.coordinator.Wait()
					_, err = ws.coordinator.Select(name, file.content)
				}
				switch {
				case errors.Is(err, upload.ErrSelectionDisabled):
					skipped = append(skipped, name)
				case err != nil:
					return err
				}
			}
			ws.coordinator.Wait()

			if err := ws.save(runCtx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			writeRows(out, taskHeaders, taskRows(ws.coordinator.Tasks()), taskAligns)
			failures := ws.observer.Failures()
			for _, failure := range failures {
				fmt.Fprintf(out, "%s: %s\n", failure.FileName, failure.Message)
			}
			for _, name := range skipped {
				fmt.Fprintf(out, "%s: skipped, the ticket already has the maximum number of attachments\n", name)
			}
			fmt.Fprintf(out, "%s attached to ticket %s\n", pluralize(ws.coordinator.Count(), "file", "files"), ticket)

			ws.logger.Info("attach finished",
				logging.Int("selected", len(files)),
				logging.Int("failed", len(failures)),
				logging.Int("skipped", len(skipped)),
				logging.Int("attached", ws.coordinator.Count()),
			)
			if len(failures) > 0 || len(skipped) > 0 {
				return fmt.Errorf("%d of %d files were not attached", len(failures)+len(skipped), len(files))
			}
			return nil
		},
	}
}

var (
	taskHeaders = []string{"#", "File", "Status", "Reference"}
	taskAligns  = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}
)

func taskRows(tasks []upload.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for i, task := range tasks {
		name := task.FileName
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), name, string(task.State.Status), task.State.Reference})
	}
	return rows
}
