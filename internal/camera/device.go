package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceBusy means another process or mode already holds the device.
	ErrDeviceBusy = errors.New("camera device busy")
	// ErrDeviceMissing means the device node does not exist.
	ErrDeviceMissing = errors.New("camera device missing")
)

// Frame is one captured image, JPEG encoded.
type Frame struct {
	Data     []byte
	Captured time.Time
}

// Device opens the camera.
type Device interface {
	Open(ctx context.Context) (Handle, error)
}

// Handle is an open camera. Close must be safe to call more than once.
type Handle interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// DeviceError reports a camera failure. Err is often ErrDeviceBusy or ErrDeviceMissing.
type DeviceError struct {
	Op     string
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("camera %s %s: %v", e.Op, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func deviceError(op, device string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Device: device, Err: err}
}
