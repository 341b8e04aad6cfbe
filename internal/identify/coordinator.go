package identify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"facewatch/internal/engine"
	"facewatch/internal/logging"
	"facewatch/internal/metrics"
)

const inboxSize = 32

// Options wires a Coordinator.
type Options struct {
	Engine Engine
	// Events is the engine's stdout line stream; it is closed when the engine exits.
	Events <-chan string
	Store  RecordStore
	// Camera may be nil, in which case webcam operations return ErrNoCamera.
	Camera       Camera
	DeviceName   string
	CapturePath  string
	PhotoDir     string
	TickInterval time.Duration
	MaxAttempts  int
	NewTicker    TickerFactory
	Logger       *slog.Logger
	Metrics      *metrics.Collectors
}

// Coordinator serializes every workflow transition on one goroutine.
type Coordinator struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collectors

	inbox   chan func()
	stopped chan struct{}
	runOnce sync.Once
	runCtx  context.Context

	// Owned by the Run goroutine.
	events      <-chan string
	gate        requestGate
	image       *fileWorkflow
	video       *fileWorkflow
	webcam      *webcamWorkflow
	pendingAdds map[string][]chan struct{}

	statusMu   sync.RWMutex
	statuses   map[Modality]Status
	gateStatus GateStatus
	changed    chan struct{}
}

// New validates opts and builds an idle Coordinator. Call Run to start it.
func New(opts Options) (*Coordinator, error) {
	if opts.Engine == nil {
		return nil, errors.New("identify: engine required")
	}
	if opts.Store == nil {
		return nil, errors.New("identify: record store required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Coordinator{
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "identify"),
		metrics:     opts.Metrics,
		inbox:       make(chan func(), inboxSize),
		stopped:     make(chan struct{}),
		runCtx:      context.Background(),
		events:      opts.Events,
		pendingAdds: make(map[string][]chan struct{}),
		statuses:    make(map[Modality]Status),
		changed:     make(chan struct{}),
	}
	c.image = newFileWorkflow(c, ModalityImage)
	c.video = newFileWorkflow(c, ModalityVideo)
	c.webcam = newWebcamWorkflow(c)
	c.publishAll()
	return c, nil
}

// Run processes commands, engine events and webcam ticks until ctx is done.
// It must be called exactly once.
func (c *Coordinator) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("identify: coordinator already running")
	}
	c.runCtx = ctx
	defer close(c.stopped)
	defer c.webcam.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.inbox:
			fn()
		case line, ok := <-c.events:
			if !ok {
				c.events = nil
				c.logger.Warn("engine event stream ended",
					logging.String(logging.FieldEventType, "engine_stream_closed"),
					logging.String(logging.FieldImpact, "pending identifications will not complete"),
					logging.String(logging.FieldErrorHint, "restart facewatch to relaunch the engine"),
				)
				continue
			}
			c.handleLine(line)
		case <-c.webcam.tickC():
			c.webcam.tick()
		}
	}
}

// do runs fn on the coordinator goroutine and waits for it.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case c.inbox <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

// post queues fn from a helper goroutine without waiting.
func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.stopped:
	}
}

func (c *Coordinator) handleLine(line string) {
	ev := engine.ParseEvent(line)
	c.metrics.EventDecoded(ev.Kind.String())
	switch {
	case ev.Kind == engine.EventIdentity, ev.IsNoMatch():
		c.routeReply(ev)
	case ev.Kind == engine.EventAdded:
		c.handleAdded(ev.Value)
	default:
		c.logger.Info("engine output", logging.String("line", ev.Raw))
	}
}

func (c *Coordinator) routeReply(ev engine.Event) {
	owner, ok := c.gate.route()
	if !ok {
		c.metrics.EventDiscarded()
		c.logger.Info("discarding engine reply with no waiting workflow",
			logging.String(logging.FieldEventType, "reply_discarded"),
			logging.String("line", ev.Raw),
		)
		c.publishGate()
		return
	}
	c.gate.release(owner)
	switch owner {
	case ModalityImage:
		c.image.reply(ev)
	case ModalityVideo:
		c.video.reply(ev)
	case ModalityWebcam:
		c.webcam.reply(ev)
	}
}

func (c *Coordinator) newRequestID() string {
	return uuid.NewString()
}

func (c *Coordinator) requestLogger(m Modality, requestID string) *slog.Logger {
	ctx := logging.WithRequestID(logging.WithModality(context.Background(), string(m)), requestID)
	return logging.WithContext(ctx, c.logger)
}

// publish stores a snapshot for readers and wakes Await callers.
func (c *Coordinator) publish(s Status) {
	s.UpdatedAt = time.Now()
	c.statusMu.Lock()
	c.statuses[s.Modality] = s
	c.gateStatus = c.gate.status()
	close(c.changed)
	c.changed = make(chan struct{})
	c.statusMu.Unlock()
}

func (c *Coordinator) publishGate() {
	c.statusMu.Lock()
	c.gateStatus = c.gate.status()
	c.statusMu.Unlock()
}

// Gate reports whether the engine is free, answering a workflow, or still
// owed a reply to an abandoned request.
func (c *Coordinator) Gate() GateStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.gateStatus
}

func (c *Coordinator) publishAll() {
	c.publish(c.image.status())
	c.publish(c.video.status())
	c.publish(c.webcam.status())
}

// Snapshot returns the latest published status of m.
func (c *Coordinator) Snapshot(m Modality) Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.statuses[m]
}

// Snapshots returns every workflow status in a stable order.
func (c *Coordinator) Snapshots() []Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return []Status{c.statuses[ModalityImage], c.statuses[ModalityVideo], c.statuses[ModalityWebcam]}
}

// Await blocks until cond holds for m's status or ctx is done.
func (c *Coordinator) Await(ctx context.Context, m Modality, cond func(Status) bool) (Status, error) {
	for {
		c.statusMu.RLock()
		s := c.statuses[m]
		changed := c.changed
		c.statusMu.RUnlock()
		if cond(s) {
			return s, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// SelectImage starts identification of a still image.
func (c *Coordinator) SelectImage(ctx context.Context, path string) error {
	return c.selectFile(ctx, c.image, path)
}

// SelectVideo starts identification of a video file.
func (c *Coordinator) SelectVideo(ctx context.Context, path string) error {
	return c.selectFile(ctx, c.video, path)
}

func (c *Coordinator) selectFile(ctx context.Context, w *fileWorkflow, path string) error {
	var err error
	if doErr := c.do(ctx, func() { err = w.selectInput(path) }); doErr != nil {
		return doErr
	}
	return err
}

// Reset returns a workflow to Idle, abandoning any in-flight request. For the
// webcam this restarts scanning with a cleared attempt counter.
//
// Abandoning a request leaves the engine owing a reply nobody wants, and no
// new request is issued until it arrives. A Reset made while the engine is
// already in that state stops waiting for it: a reply that still arrives
// later may then be taken as the answer to the next request.
func (c *Coordinator) Reset(ctx context.Context, m Modality) error {
	var err error
	doErr := c.do(ctx, func() {
		stale := c.gate.status().State == GateOrphaned
		defer func() {
			if err == nil && stale && c.gate.forget() {
				logging.WarnWithContext(c.logger, "no longer waiting for the reply to an abandoned request", "abandoned_reply_forgotten",
					logging.String(logging.FieldModality, string(m)),
					logging.String(logging.FieldImpact, "a late engine reply may be attributed to the next request"),
					logging.String(logging.FieldErrorHint, "restart facewatch if results look mismatched"),
				)
				c.publishGate()
			}
		}()
		switch m {
		case ModalityImage:
			c.image.reset()
		case ModalityVideo:
			c.video.reset()
		case ModalityWebcam:
			err = c.webcam.restart()
		default:
			err = fmt.Errorf("%w: unknown modality %q", ErrInvalidInput, m)
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// WebcamOn starts live scanning.
func (c *Coordinator) WebcamOn(ctx context.Context) error {
	var err error
	if doErr := c.do(ctx, func() { err = c.webcam.toggleOn() }); doErr != nil {
		return doErr
	}
	return err
}

// WebcamOff stops scanning and releases the camera.
func (c *Coordinator) WebcamOff(ctx context.Context) error {
	return c.do(ctx, func() { c.webcam.toggleOff() })
}

// NotifyDevice feeds hotplug events to the webcam workflow.
func (c *Coordinator) NotifyDevice(ctx context.Context, added bool) error {
	return c.do(ctx, func() { c.webcam.deviceChanged(added) })
}
