package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"facewatch/internal/records"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect registered subjects",
	}
	cmd.AddCommand(newRecordShowCommand(ctx))
	cmd.AddCommand(newRecordListCommand(ctx))
	return cmd
}

func withStore(ctx *commandContext, fn func(*records.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := records.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newRecordShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := records.ParseID(args[0])
			if err != nil {
				return err
			}
			return withStore(ctx, func(store *records.Store) error {
				rec, photos, err := store.GetRecordWithPhotos(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderRecord(rec))
				fmt.Fprintf(out, "Photos: %d\n", len(photos))
				return nil
			})
		},
	}
}

func newRecordListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *records.Store) error {
				recs, err := store.ListRecords(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "No records")
					return nil
				}
				rows := make([][]string, 0, len(recs))
				for _, rec := range recs {
					rows = append(rows, []string{
						records.FormatID(rec.ID),
						rec.Name,
						formatDate(rec.DateOfArrest),
						strconv.Itoa(rec.NoOfCrimes),
						dash(rec.ArrestedLocation),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Arrested", "Crimes", "Location"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
