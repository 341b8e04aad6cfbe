package camera_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"facewatch/internal/camera"
)

var jpegFrame = []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}

// fakeDevice counts how many handles are open at once.
type fakeDevice struct {
	open    atomic.Int32
	maxOpen atomic.Int32
	opens   atomic.Int32

	mu       sync.Mutex
	openErr  error
	readErr  error
	interval time.Duration
}

func (d *fakeDevice) setOpenErr(err error) {
	d.mu.Lock()
	d.openErr = err
	d.mu.Unlock()
}

func (d *fakeDevice) setReadErr(err error) {
	d.mu.Lock()
	d.readErr = err
	d.mu.Unlock()
}

func (d *fakeDevice) Open(context.Context) (camera.Handle, error) {
	d.mu.Lock()
	openErr, readErr, interval := d.openErr, d.readErr, d.interval
	d.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}
	n := d.open.Add(1)
	d.opens.Add(1)
	for {
		cur := d.maxOpen.Load()
		if n <= cur || d.maxOpen.CompareAndSwap(cur, n) {
			break
		}
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &fakeHandle{dev: d, readErr: readErr, interval: interval, closed: make(chan struct{})}, nil
}

type fakeHandle struct {
	dev      *fakeDevice
	readErr  error
	interval time.Duration
	once     sync.Once
	closed   chan struct{}
}

func (h *fakeHandle) ReadFrame(ctx context.Context) (camera.Frame, error) {
	select {
	case <-h.closed:
		return camera.Frame{}, errors.New("handle closed")
	case <-ctx.Done():
		return camera.Frame{}, ctx.Err()
	case <-time.After(h.interval):
	}
	if h.readErr != nil {
		return camera.Frame{}, h.readErr
	}
	return camera.Frame{Data: append([]byte(nil), jpegFrame...), Captured: time.Now()}, nil
}

func (h *fakeHandle) Close() error {
	h.once.Do(func() {
		close(h.closed)
		h.dev.open.Add(-1)
	})
	return nil
}
