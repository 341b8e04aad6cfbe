package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"facewatch/internal/api"
	"facewatch/internal/app"
	"facewatch/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the HTTP control surface until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, bind)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override api.bind (host:port)")
	return cmd
}

func runServe(cmdCtx context.Context, ctx *commandContext, bindOverride string) error {
	if ctx == nil {
		return errors.New("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another facewatch instance is already running (lock %s)", cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a, err := app.Start(signalCtx, cfg, app.Options{Logger: logger, SessionID: sessionID})
	if err != nil {
		return err
	}
	defer a.Close()

	bind := cfg.API.Bind
	if bindOverride != "" {
		bind = bindOverride
	}
	opts := api.Options{
		Bind:         bind,
		Coordinator:  a.Coordinator,
		Records:      a.Store,
		Engine:       a.Engine,
		Metrics:      a.Metrics,
		Dependencies: a.Dependencies,
		SessionID:    a.SessionID,
		StartedAt:    a.StartedAt,
		Logger:       logger,
	}
	if a.Camera != nil {
		opts.Frames = a.Camera
	}
	srv, err := api.New(opts)
	if err != nil {
		return err
	}
	if err := srv.Start(signalCtx); err != nil {
		return err
	}
	defer srv.Stop()

	logger.Info("facewatch serving",
		logging.String(logging.FieldEventType, "serve_started"),
		logging.String("lock", cfg.LockPath()),
	)
	// An engine exit is logged by the app and surfaces through /api/status;
	// the control surface stays up so operators can inspect it.
	<-signalCtx.Done()
	logger.Info("facewatch shutting down", logging.String(logging.FieldEventType, "serve_stopping"))
	return nil
}
