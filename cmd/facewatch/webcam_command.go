package main

import (
	"time"

	"github.com/spf13/cobra"

	"facewatch/internal/app"
	"facewatch/internal/identify"
)

func newWebcamCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "webcam",
		Short: "Scan the live camera until a subject is found or attempts run out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Coordinator.WebcamOn(cmd.Context()); err != nil {
					return err
				}
				defer func() { _ = a.Coordinator.WebcamOff(cmd.Context()) }()
				return awaitOutcome(cmd, a, identify.ModalityWebcam, wait)
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", defaultWait, "How long to keep scanning")
	return cmd
}
