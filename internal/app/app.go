package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"facewatch/internal/camera"
	"facewatch/internal/config"
	"facewatch/internal/deps"
	"facewatch/internal/engine"
	"facewatch/internal/identify"
	"facewatch/internal/logging"
	"facewatch/internal/metrics"
	"facewatch/internal/records"
)

// Options adjusts how Start assembles the runtime.
type Options struct {
	// Logger overrides the configured logger; the CLI passes its own for one-shots.
	Logger *slog.Logger
	// SessionID correlates every log line of this process. Generated when empty.
	SessionID string
	// DisableHotplug skips the netlink watcher, as one-shot commands do.
	DisableHotplug bool
}

// App owns every long-lived component of a running facewatch process.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	SessionID   string
	StartedAt   time.Time
	Metrics     *metrics.Collectors
	Store       *records.Store
	Engine      *engine.Supervisor
	Camera      *camera.Arbiter
	Coordinator *identify.Coordinator

	events  *engine.Receiver
	hotplug *camera.HotplugWatcher
	cancel  context.CancelFunc
	runDone chan struct{}
}

// Start opens the record store, spawns the engine, announces "start" and runs
// the coordinator until ctx is done or Close is called.
func Start(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger, err = logging.NewFromConfig(cfg, sessionID)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
		Metrics:   metrics.New(),
		runDone:   make(chan struct{}),
	}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	logDependencySnapshot(logger, cfg)

	a.Store, err = records.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("open record store",
			logging.Error(err),
			logging.String(logging.FieldEventType, "record_store_open_failed"),
			logging.String(logging.FieldErrorHint, "check store.path permissions"),
		)
		return nil, err
	}

	engineOpts := engine.OptionsFromConfig(cfg)
	engineOpts.Logger = logger
	engineOpts.Metrics = a.Metrics
	a.Engine, err = engine.Spawn(engineOpts)
	if err != nil {
		logger.Error("spawn engine",
			logging.Error(err),
			logging.String(logging.FieldEventType, "engine_spawn_failed"),
			logging.String(logging.FieldErrorHint, "run facewatch doctor to check the interpreter and script"),
			logging.String(logging.FieldImpact, "no identification is possible"),
		)
		return nil, err
	}
	a.Metrics.SetEngineRunning(true)
	a.events, err = a.Engine.Events()
	if err != nil {
		return nil, err
	}
	if err := a.Engine.Send(engine.Start()); err != nil {
		return nil, fmt.Errorf("announce start: %w", err)
	}

	var cam identify.Camera
	if device := strings.TrimSpace(cfg.Camera.Device); device != "" {
		a.Camera = camera.NewArbiter(camera.NewFFmpegDevice(cfg, logger), device, logger, a.Metrics)
		cam = a.Camera
	}

	a.Coordinator, err = identify.New(identify.Options{
		Engine:       a.Engine,
		Events:       a.events.C(),
		Store:        a.Store,
		Camera:       cam,
		DeviceName:   cfg.Camera.Device,
		CapturePath:  cfg.CaptureFramePath(),
		PhotoDir:     cfg.Paths.PhotoCacheDir,
		TickInterval: cfg.TickInterval(),
		MaxAttempts:  cfg.Webcam.MaxAttempts,
		Logger:       logger,
		Metrics:      a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go func() {
		defer close(a.runDone)
		if err := a.Coordinator.Run(runCtx); err != nil {
			logger.Error("coordinator stopped", logging.Error(err))
		}
	}()
	go a.watchEngine(runCtx)

	if a.Camera != nil && cfg.Camera.Hotplug && !opts.DisableHotplug {
		a.hotplug = camera.NewHotplugWatcher(cfg.Camera.Device, logger, func(ev camera.HotplugEvent) {
			notifyCtx, cancel := context.WithTimeout(runCtx, 5*time.Second)
			defer cancel()
			if err := a.Coordinator.NotifyDevice(notifyCtx, ev.Action == camera.HotplugAdd); err != nil {
				logging.WarnWithContext(logger, "hotplug event not delivered", "hotplug_dropped",
					logging.String("action", string(ev.Action)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "webcam preview may not resume automatically"),
					logging.String(logging.FieldErrorHint, "toggle the webcam off and on"),
				)
			}
		})
		_ = a.hotplug.Start(runCtx)
	}

	logger.Info("facewatch started",
		logging.String(logging.FieldEventType, "app_started"),
		logging.Int("engine_pid", a.Engine.Pid()),
		logging.Bool("camera_configured", a.Camera != nil),
		logging.String("record_store", a.Store.Path()),
	)
	return a, nil
}

// Dependencies re-checks external dependencies for status reporting.
func (a *App) Dependencies() []deps.Status {
	return deps.CheckSystem(a.Config)
}

// Close stops the coordinator, releases the camera and terminates the engine.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.Logger.Info("facewatch shutting down", logging.String(logging.FieldEventType, "app_stopping"))
	return a.release()
}

func (a *App) release() error {
	if a.hotplug != nil {
		a.hotplug.Stop()
		a.hotplug = nil
	}
	if a.cancel != nil {
		a.cancel()
		<-a.runDone
		a.cancel = nil
	}
	// The coordinator no longer drains the stream; unblock the stdout reader.
	if a.events != nil {
		a.events.Close()
	}
	if a.Camera != nil {
		a.Camera.Close()
	}
	var errs []error
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
		a.Metrics.SetEngineRunning(false)
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close record store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) watchEngine(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-a.Engine.Done():
	}
	a.Metrics.SetEngineRunning(false)
	a.Logger.Error("engine exited",
		logging.String(logging.FieldEventType, "engine_exited"),
		logging.Error(a.Engine.ExitErr()),
		logging.String(logging.FieldErrorHint, "check the engine-stderr log lines"),
		logging.String(logging.FieldImpact, "identification requests will fail until restart"),
	)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range deps.CheckSystem(cfg) {
		key := strings.ToLower(strings.ReplaceAll(status.Name, " ", "_"))
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
		if !status.Available && status.Detail != "" {
			attrs = append(attrs, logging.String(key+"_detail", status.Detail))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
