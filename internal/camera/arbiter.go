package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"facewatch/internal/fileutil"
	"facewatch/internal/logging"
	"facewatch/internal/metrics"
)

// Mode is what the device is currently open for.
type Mode int32

const (
	ModeClosed Mode = iota
	ModePreview
	ModeCapture
)

func (m Mode) String() string {
	switch m {
	case ModePreview:
		return "preview"
	case ModeCapture:
		return "capture"
	default:
		return "closed"
	}
}

var modeNames = []string{ModeClosed.String(), ModePreview.String(), ModeCapture.String()}

// Lease is the exclusive token over an open Handle. Only the Arbiter creates
// leases and it holds at most one at a time; no lease means the device is closed.
type Lease struct {
	handle Handle
	mode   Mode
	once   sync.Once
}

// Mode reports what the lease was granted for.
func (l *Lease) Mode() Mode { return l.mode }

func (l *Lease) release() {
	l.once.Do(func() { _ = l.handle.Close() })
}

// Arbiter serializes access to a Device between the live preview and
// one-shot captures. It never resumes preview on its own.
type Arbiter struct {
	device  Device
	name    string
	logger  *slog.Logger
	metrics *metrics.Collectors

	mu         sync.Mutex
	lease      *Lease
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}
	mode       atomic.Int32

	frameMu sync.RWMutex
	latest  Frame
}

// NewArbiter wraps device. name is only used in errors and logs.
func NewArbiter(device Device, name string, logger *slog.Logger, m *metrics.Collectors) *Arbiter {
	a := &Arbiter{
		device:  device,
		name:    name,
		logger:  logging.NewComponentLogger(logger, "camera-arbiter"),
		metrics: m,
	}
	m.SetDeviceMode(ModeClosed.String(), modeNames...)
	return a
}

// Mode returns the current acquisition mode without waiting on in-flight transitions.
func (a *Arbiter) Mode() Mode {
	return Mode(a.mode.Load())
}

// LatestFrame returns the most recent preview frame, if any.
func (a *Arbiter) LatestFrame() (Frame, bool) {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	return a.latest, a.latest.Data != nil
}

// EnablePreview opens the device for continuous preview. It is a no-op when
// preview is already running and fails with ErrDeviceBusy during a capture.
func (a *Arbiter) EnablePreview(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lease != nil {
		switch a.lease.mode {
		case ModeCapture:
			return &DeviceError{Op: "preview", Device: a.name, Err: ErrDeviceBusy}
		case ModePreview:
			if !a.pumpExitedLocked() {
				return nil
			}
			a.logger.Debug("preview pump exited; reopening device")
			a.stopPreviewLocked()
		}
	}

	handle, err := a.device.Open(ctx)
	if err != nil {
		return deviceError("preview", a.name, err)
	}
	a.grantLocked(&Lease{handle: handle, mode: ModePreview})

	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.pumpCancel = cancel
	a.pumpDone = done
	go a.pump(pumpCtx, handle, done)

	a.logger.Info("preview enabled", logging.String(logging.FieldEventType, "preview_enabled"))
	return nil
}

// DisablePreview releases the device if preview holds it.
func (a *Arbiter) DisablePreview() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lease == nil || a.lease.mode != ModePreview {
		return
	}
	a.stopPreviewLocked()
	a.logger.Info("preview disabled", logging.String(logging.FieldEventType, "preview_disabled"))
}

// Capture grabs exactly one frame and writes it to path. Preview is forced off
// first. The device is always closed before Capture returns.
func (a *Arbiter) Capture(ctx context.Context, path string) (Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lease != nil && a.lease.mode == ModePreview {
		a.stopPreviewLocked()
	}

	handle, err := a.device.Open(ctx)
	if err != nil {
		a.metrics.Capture("open_failed")
		return Frame{}, deviceError("capture", a.name, err)
	}
	a.grantLocked(&Lease{handle: handle, mode: ModeCapture})
	defer a.revokeLocked()

	frame, err := handle.ReadFrame(ctx)
	if err != nil {
		a.metrics.Capture("read_failed")
		return Frame{}, deviceError("capture", a.name, err)
	}
	if err := writeFrame(path, frame.Data); err != nil {
		a.metrics.Capture("write_failed")
		return Frame{}, err
	}
	a.metrics.Capture("ok")
	a.logger.Debug("frame captured", logging.String("path", path), logging.Int("bytes", len(frame.Data)))
	return frame, nil
}

// Close releases whatever lease is held.
func (a *Arbiter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lease == nil {
		return
	}
	if a.lease.mode == ModePreview {
		a.stopPreviewLocked()
		return
	}
	a.revokeLocked()
}

func (a *Arbiter) pump(ctx context.Context, handle Handle, done chan struct{}) {
	defer close(done)
	for {
		frame, err := handle.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("preview stream failed",
					logging.String(logging.FieldEventType, "preview_failed"),
					logging.String(logging.FieldImpact, "live preview frozen until re-enabled"),
					logging.Error(err),
				)
			}
			return
		}
		a.frameMu.Lock()
		a.latest = frame
		a.frameMu.Unlock()
	}
}

func (a *Arbiter) pumpExitedLocked() bool {
	if a.pumpDone == nil {
		return true
	}
	select {
	case <-a.pumpDone:
		return true
	default:
		return false
	}
}

func (a *Arbiter) stopPreviewLocked() {
	if a.pumpCancel != nil {
		a.pumpCancel()
	}
	a.revokeLocked()
	if a.pumpDone != nil {
		<-a.pumpDone
	}
	a.pumpCancel = nil
	a.pumpDone = nil
}

func (a *Arbiter) grantLocked(l *Lease) {
	a.lease = l
	a.mode.Store(int32(l.mode))
	a.metrics.SetDeviceMode(l.mode.String(), modeNames...)
}

func (a *Arbiter) revokeLocked() {
	if a.lease == nil {
		return
	}
	a.lease.release()
	a.lease = nil
	a.mode.Store(int32(ModeClosed))
	a.metrics.SetDeviceMode(ModeClosed.String(), modeNames...)
}

func writeFrame(path string, data []byte) error {
	if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("publish capture file: %w", err)
	}
	return nil
}
