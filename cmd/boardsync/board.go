package main

import (
	"context"
	"fmt"
	"io"

	"github.com/h0rv/boardsync/internal/board"
	"github.com/h0rv/boardsync/internal/domain"
)

// printBoard writes the project's Status columns in the order configured on
// the board, followed by items without a status.
func printBoard(ctx context.Context, w io.Writer, a *app, withIDs bool) error {
	project, err := a.rec.Project(ctx)
	if err != nil {
		return err
	}

	fields, err := a.client.GetProjectFields(ctx, project.ID)
	if err != nil {
		return err
	}

	snap, err := a.rec.Board(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Project: %s (#%d) ID=%s\n", project.Title, project.Number, project.ID)
	fmt.Fprintf(w, "Items: %d\n\n", snap.Len())

	var columns []string
	for _, f := range fields {
		if f.Name == domain.StatusFieldName && f.Type == domain.FieldTypeSingleSelect {
			for _, opt := range f.Options {
				columns = append(columns, opt.Name)
			}
			break
		}
	}
	if columns == nil {
		fmt.Fprintln(w, "No Status field found!")
	}
	columns = append(columns, board.NoStatusKey)

	counts := snap.ColumnCounts()
	for _, name := range columns {
		label := name
		if name == board.NoStatusKey {
			label = "No Status"
		}
		fmt.Fprintf(w, "  %-20s %d\n", label, counts[name])
		if withIDs {
			for _, id := range snap.ColumnItemIDs(name) {
				fmt.Fprintf(w, "      %s\n", id)
			}
		}
	}
	return nil
}
