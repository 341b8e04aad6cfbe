package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"facewatch/internal/app"
	"facewatch/internal/identify"
)

const defaultWait = 2 * time.Minute

var errNoMatch = errors.New("no matching subject")

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Identify a subject in an image or video file",
	}
	cmd.AddCommand(newIdentifyFileCommand(ctx, identify.ModalityImage, "Identify a still image"))
	cmd.AddCommand(newIdentifyFileCommand(ctx, identify.ModalityVideo, "Identify a video file"))
	return cmd
}

func newIdentifyFileCommand(ctx *commandContext, modality identify.Modality, short string) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   string(modality) + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				selectFn := a.Coordinator.SelectImage
				if modality == identify.ModalityVideo {
					selectFn = a.Coordinator.SelectVideo
				}
				if err := selectFn(cmd.Context(), path); err != nil {
					return err
				}
				return awaitOutcome(cmd, a, modality, wait)
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", defaultWait, "How long to wait for the engine's answer")
	return cmd
}

// awaitOutcome waits for a terminal state, prints it and maps NotFound to errNoMatch.
func awaitOutcome(cmd *cobra.Command, a *app.App, modality identify.Modality, wait time.Duration) error {
	waitCtx, cancel := context.WithTimeout(cmd.Context(), wait)
	defer cancel()

	out := cmd.OutOrStdout()
	st, err := a.Coordinator.Await(waitCtx, modality, func(s identify.Status) bool {
		return s.State.Terminal()
	})
	if err != nil {
		renderOutcome(out, st, shouldColorize(out))
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no answer within %s", wait)
		}
		return err
	}
	renderOutcome(out, st, shouldColorize(out))
	if st.State == identify.StateNotFound {
		return errNoMatch
	}
	return nil
}
