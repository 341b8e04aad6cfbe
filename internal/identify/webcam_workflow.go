package identify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"facewatch/internal/camera"
	"facewatch/internal/engine"
	"facewatch/internal/fileutil"
	"facewatch/internal/logging"
	"facewatch/internal/records"
)

// webcamWorkflow scans the live camera: on each tick it captures one frame
// and asks the engine about it, retrying until a match or MaxAttempts misses.
type webcamWorkflow struct {
	c *Coordinator

	on        bool
	state     State
	attempts  int
	capturing bool
	pending   bool
	requestID string
	reason    Reason
	lastErr   string
	result    *Result
	frame     []byte
	gen       uint64

	ticker        Ticker
	cancelCapture context.CancelFunc
	log           *slog.Logger
}

func newWebcamWorkflow(c *Coordinator) *webcamWorkflow {
	return &webcamWorkflow{c: c, state: StateIdle, log: c.logger}
}

func (w *webcamWorkflow) status() Status {
	s := Status{
		Modality:    ModalityWebcam,
		State:       w.state,
		RequestID:   w.requestID,
		Reason:      w.reason,
		LastError:   w.lastErr,
		Result:      w.result,
		WebcamOn:    w.on,
		Attempts:    w.attempts,
		MaxAttempts: w.c.opts.MaxAttempts,
	}
	if cam := w.c.opts.Camera; cam != nil {
		s.Device = cam.Mode().String()
	}
	return s
}

func (w *webcamWorkflow) publish() {
	w.c.publish(w.status())
	w.c.metrics.SetWebcamAttempts(w.attempts)
}

func (w *webcamWorkflow) tickC() <-chan time.Time {
	if w.ticker == nil {
		return nil
	}
	return w.ticker.C()
}

func (w *webcamWorkflow) toggleOn() error {
	if w.c.opts.Camera == nil {
		return ErrNoCamera
	}
	// A request that never reached the engine leaves nothing to wait for.
	stalled := w.state == StateRequesting && !w.pending
	if w.on && !w.state.Terminal() && !stalled {
		// Already scanning; only the attempt budget starts over.
		w.attempts = 0
		w.publish()
		return nil
	}
	w.begin()
	return nil
}

// restart is the explicit reset: abandon whatever is in flight and scan afresh.
func (w *webcamWorkflow) restart() error {
	if w.c.opts.Camera == nil {
		return ErrNoCamera
	}
	w.abandon()
	w.begin()
	return nil
}

func (w *webcamWorkflow) begin() {
	w.gen++
	w.on = true
	w.state = StateAwaitingInput
	w.attempts = 0
	w.reason = ""
	w.lastErr = ""
	w.result = nil
	w.frame = nil
	w.requestID = ""
	w.log = w.c.requestLogger(ModalityWebcam, "")
	w.enablePreview()
	w.startTicker()
	w.publish()
	w.log.Info("webcam scanning started", logging.String(logging.FieldEventType, "webcam_on"))
}

func (w *webcamWorkflow) toggleOff() {
	if w.c.opts.Camera == nil {
		return
	}
	w.abandon()
	w.on = false
	w.state = StateIdle
	w.attempts = 0
	w.reason = ""
	w.lastErr = ""
	w.result = nil
	w.frame = nil
	w.requestID = ""
	w.publish()
	w.log.Info("webcam scanning stopped", logging.String(logging.FieldEventType, "webcam_off"))
}

// abandon stops ticking, drops in-flight work and releases the camera.
func (w *webcamWorkflow) abandon() {
	w.gen++
	if w.pending {
		w.c.gate.abandon(ModalityWebcam)
		w.pending = false
	}
	if w.cancelCapture != nil {
		w.cancelCapture()
		w.cancelCapture = nil
	}
	w.capturing = false
	w.stopTicker()
	w.c.opts.Camera.DisablePreview()
}

func (w *webcamWorkflow) shutdown() {
	if w.c.opts.Camera == nil {
		return
	}
	w.abandon()
}

func (w *webcamWorkflow) startTicker() {
	if w.ticker == nil {
		w.ticker = w.c.opts.NewTicker(w.c.opts.TickInterval)
	}
}

func (w *webcamWorkflow) stopTicker() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
}

func (w *webcamWorkflow) enablePreview() {
	if err := w.c.opts.Camera.EnablePreview(w.c.runCtx); err != nil {
		w.deviceError(err)
	}
}

func (w *webcamWorkflow) deviceError(err error) {
	w.lastErr = err.Error()
	hint := "check that no other program is using the camera"
	if errors.Is(err, camera.ErrDeviceMissing) {
		hint = "check that the camera is connected"
	}
	w.log.Warn("camera unavailable",
		logging.String(logging.FieldEventType, "webcam_device_error"),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "scan retried on next tick"),
		logging.String("device", w.c.opts.DeviceName),
		logging.Error(err),
	)
}

func (w *webcamWorkflow) tick() {
	if !w.on || w.state != StateAwaitingInput || w.capturing || w.pending {
		return
	}
	if w.attempts >= w.c.opts.MaxAttempts {
		return
	}
	if err := w.c.gate.blocked(); err != nil {
		w.waitForEngine(err)
		return
	}

	w.capturing = true
	gen := w.gen
	ctx, cancel := context.WithCancel(w.c.runCtx)
	w.cancelCapture = cancel
	cam := w.c.opts.Camera
	path := w.c.opts.CapturePath
	go func() {
		frame, err := cam.Capture(ctx, path)
		cancel()
		w.c.post(func() { w.captured(gen, frame, err) })
	}()
}

// waitForEngine records that a scan was skipped because the engine is held
// elsewhere. The attempt budget is untouched.
func (w *webcamWorkflow) waitForEngine(err error) {
	if w.lastErr == err.Error() {
		return
	}
	w.lastErr = err.Error()
	w.publish()
	w.log.Info("webcam scan waiting for the engine",
		logging.String(logging.FieldEventType, "webcam_scan_deferred"),
		logging.String("gate", string(w.c.gate.status().State)),
	)
}

func (w *webcamWorkflow) captured(gen uint64, frame camera.Frame, err error) {
	if gen != w.gen {
		return
	}
	w.capturing = false
	w.cancelCapture = nil
	if err != nil {
		w.deviceError(err)
		w.enablePreview()
		w.publish()
		return
	}
	if err := w.c.gate.acquire(ModalityWebcam); err != nil {
		w.enablePreview()
		w.waitForEngine(err)
		return
	}

	w.frame = frame.Data
	w.requestID = w.c.newRequestID()
	w.log = w.c.requestLogger(ModalityWebcam, w.requestID)
	w.state = StateRequesting
	if err := w.c.opts.Engine.Send(engine.IdentifyImage(w.c.opts.CapturePath)); err != nil {
		w.c.gate.release(ModalityWebcam)
		w.lastErr = err.Error()
		w.publish()
		w.log.Warn("webcam identify request not delivered",
			logging.String(logging.FieldEventType, "identify_write_failed"),
			logging.String(logging.FieldImpact, "scanning paused until reset"),
			logging.Error(err),
		)
		return
	}
	w.pending = true
	w.lastErr = ""
	w.publish()
	w.log.Debug("webcam frame submitted", logging.Int("attempt", w.attempts+1))
}

func (w *webcamWorkflow) reply(ev engine.Event) {
	w.pending = false
	if ev.Kind != engine.EventIdentity {
		w.miss("")
		return
	}
	id, err := records.ParseID(ev.Value)
	if err != nil {
		w.miss("")
		return
	}
	w.state = StateIdentifying
	w.publish()
	gen := w.gen
	ctx := w.c.runCtx
	store := w.c.opts.Store
	go func() {
		rec, photos, err := store.GetRecordWithPhotos(ctx, id)
		w.c.post(func() { w.lookupDone(gen, ev.Value, rec, photos, err) })
	}()
}

func (w *webcamWorkflow) lookupDone(gen uint64, subject string, rec *records.Record, photos []records.Photo, err error) {
	if gen != w.gen || w.state != StateIdentifying {
		return
	}
	switch {
	case errors.Is(err, records.ErrNotFound):
		w.miss("")
	case err != nil:
		w.log.Warn("record lookup failed",
			logging.String(logging.FieldEventType, "record_lookup_failed"),
			logging.String(logging.FieldImpact, "counted as a missed attempt"),
			logging.Error(err),
		)
		w.miss(err.Error())
	default:
		w.found(subject, rec, photos)
	}
}

// miss counts a failed attempt and either resumes scanning or gives up.
func (w *webcamWorkflow) miss(detail string) {
	w.attempts++
	if detail != "" {
		w.lastErr = detail
	}
	if w.attempts >= w.c.opts.MaxAttempts {
		w.attempts = w.c.opts.MaxAttempts
		w.stopTicker()
		w.c.opts.Camera.DisablePreview()
		w.on = false
		w.state = StateNotFound
		w.reason = ReasonAttemptsExhausted
		w.publish()
		w.c.metrics.Outcome(string(ModalityWebcam), string(ReasonAttemptsExhausted))
		w.log.Info("webcam scan gave up",
			logging.String(logging.FieldEventType, "identify_not_found"),
			logging.Int("attempts", w.attempts),
		)
		return
	}
	w.state = StateAwaitingInput
	w.enablePreview()
	w.publish()
	w.log.Debug("webcam attempt missed", logging.Int("attempts", w.attempts))
}

func (w *webcamWorkflow) found(subject string, rec *records.Record, photos []records.Photo) {
	w.stopTicker()
	w.c.opts.Camera.DisablePreview()
	w.on = false
	w.attempts = 0

	var shown []string
	if framePath := w.saveFrame(rec.ID); framePath != "" {
		shown = append(shown, framePath)
	}
	shown = append(shown, records.MaterializePhotos(w.c.opts.PhotoDir, rec.ID, photos, w.log)...)

	w.state = StateFound
	w.result = &Result{Subject: subject, Record: rec, Photos: shown}
	w.publish()
	w.c.metrics.Outcome(string(ModalityWebcam), string(StateFound))
	w.log.Info("subject identified",
		logging.String(logging.FieldEventType, "identify_found"),
		logging.Int64("record_id", rec.ID),
	)
}

// saveFrame keeps the matching frame, since the capture path is reused by the next scan.
func (w *webcamWorkflow) saveFrame(recordID int64) string {
	if len(w.frame) == 0 || w.c.opts.PhotoDir == "" {
		return ""
	}
	path := filepath.Join(w.c.opts.PhotoDir, fmt.Sprintf("match_%d.jpg", recordID))
	if err := fileutil.WriteAtomic(path, w.frame, 0o644); err != nil {
		w.log.Warn("could not keep matching frame", logging.String("path", path), logging.Error(err))
		return ""
	}
	return path
}

func (w *webcamWorkflow) deviceChanged(added bool) {
	if w.c.opts.Camera == nil {
		return
	}
	if !added {
		w.lastErr = (&camera.DeviceError{Op: "hotplug", Device: w.c.opts.DeviceName, Err: camera.ErrDeviceMissing}).Error()
		w.publish()
		return
	}
	if w.on && w.state == StateAwaitingInput && !w.capturing && w.c.opts.Camera.Mode() == camera.ModeClosed {
		w.lastErr = ""
		w.enablePreview()
		w.publish()
	}
}
