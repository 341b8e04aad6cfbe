package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facewatch/internal/app"
	"facewatch/internal/records"
)

const dateFlagLayout = "2006-01-02"

func newEnrollCommand(ctx *commandContext) *cobra.Command {
	var (
		rec      records.NewRecord
		arrested string
		lastSeen string
		photos   []string
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Register a subject and announce their photos to the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if rec.DateOfArrest, err = parseDateFlag("arrested", arrested); err != nil {
				return err
			}
			if rec.LastSeen, err = parseDateFlag("last-seen", lastSeen); err != nil {
				return err
			}
			paths := make([]string, 0, len(photos))
			for _, p := range photos {
				abs, err := filepath.Abs(p)
				if err != nil {
					return fmt.Errorf("resolve photo %s: %w", p, err)
				}
				paths = append(paths, abs)
			}

			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				enrollment, err := a.Coordinator.Enroll(cmd.Context(), rec, paths)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Enrolled record %d with %d photo(s)\n", enrollment.RecordID, enrollment.Photos)
				if enrollment.Ack == nil {
					fmt.Fprintln(out, "No readable photos; the engine was not notified")
					return nil
				}
				select {
				case <-enrollment.Ack:
					fmt.Fprintln(out, "Engine acknowledged enrollment")
				case <-time.After(wait):
					fmt.Fprintf(out, "Engine did not acknowledge within %s\n", wait)
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rec.Name, "name", "", "Subject name (required)")
	cmd.Flags().StringVar(&rec.FathersName, "fathers-name", "", "Father's name")
	cmd.Flags().StringVar(&rec.ArrestedLocation, "location", "", "Where the subject was arrested")
	cmd.Flags().IntVar(&rec.NoOfCrimes, "crimes", 1, "Number of recorded crimes")
	cmd.Flags().StringVar(&arrested, "arrested", "", "Date of arrest (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&lastSeen, "last-seen", "", "Date last seen (YYYY-MM-DD)")
	cmd.Flags().StringSliceVarP(&photos, "photo", "p", nil, "Photo of the subject (repeatable)")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the engine's acknowledgement")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func parseDateFlag(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateFlagLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return t, nil
}
