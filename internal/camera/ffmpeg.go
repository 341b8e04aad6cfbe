package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"facewatch/internal/config"
	"facewatch/internal/logging"
)

const (
	maxFrameBytes  = 16 << 20
	stderrTailSize = 4 << 10
)

// FFmpegDevice reads MJPEG frames from a V4L2 node through ffmpeg. A flock on
// LockPath keeps other facewatch processes off the device while a handle is open.
type FFmpegDevice struct {
	Path     string
	Binary   string
	LockPath string
	Width    int
	Height   int
	Logger   *slog.Logger
}

// NewFFmpegDevice maps the camera section of the configuration.
func NewFFmpegDevice(cfg *config.Config, logger *slog.Logger) *FFmpegDevice {
	return &FFmpegDevice{
		Path:     cfg.Camera.Device,
		Binary:   cfg.Camera.FFmpegBinary,
		LockPath: cfg.Camera.LockPath,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
		Logger:   logging.NewComponentLogger(logger, "camera"),
	}
}

// Open checks the node, takes the device lock and starts ffmpeg.
func (d *FFmpegDevice) Open(ctx context.Context) (Handle, error) {
	if _, err := os.Stat(d.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &DeviceError{Op: "open", Device: d.Path, Err: ErrDeviceMissing}
		}
		return nil, &DeviceError{Op: "open", Device: d.Path, Err: err}
	}
	if err := unix.Access(d.Path, unix.R_OK); err != nil {
		return nil, &DeviceError{Op: "open", Device: d.Path, Err: fmt.Errorf("access: %w", err)}
	}

	var lock *flock.Flock
	if d.LockPath != "" {
		lock = flock.New(d.LockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return nil, &DeviceError{Op: "lock", Device: d.Path, Err: err}
		}
		if !ok {
			return nil, &DeviceError{Op: "lock", Device: d.Path, Err: ErrDeviceBusy}
		}
	}

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, d.Binary, d.args()...)
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		unlock(lock)
		return nil, &DeviceError{Op: "open", Device: d.Path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		unlock(lock)
		return nil, &DeviceError{Op: "open", Device: d.Path, Err: err}
	}

	h := &ffmpegHandle{
		device: d.Path,
		cmd:    cmd,
		cancel: cancel,
		lock:   lock,
		stderr: stderr,
		frames: make(chan Frame, 1),
		exited: make(chan struct{}),
	}
	go h.pump(stdout)
	if d.Logger != nil {
		d.Logger.Debug("camera opened", logging.String("device", d.Path), logging.Int("pid", cmd.Process.Pid))
	}
	return h, nil
}

func (d *FFmpegDevice) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if d.Width > 0 && d.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", d.Width, d.Height))
	}
	return append(args, "-i", d.Path, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}

func unlock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

type ffmpegHandle struct {
	device string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	lock   *flock.Flock
	stderr *tailBuffer

	frames  chan Frame
	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
}

// pump keeps only the newest frame so a slow reader never sees stale images.
func (h *ffmpegHandle) pump(stdout io.Reader) {
	defer close(h.exited)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 256<<10), maxFrameBytes)
	scanner.Split(splitJPEG)
	for scanner.Scan() {
		frame := Frame{Data: bytes.Clone(scanner.Bytes()), Captured: time.Now()}
		select {
		case h.frames <- frame:
		default:
			select {
			case <-h.frames:
			default:
			}
			h.frames <- frame
		}
	}
	h.waitErr = h.cmd.Wait()
}

func (h *ffmpegHandle) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case frame := <-h.frames:
		return frame, nil
	case <-h.exited:
		select {
		case frame := <-h.frames:
			return frame, nil
		default:
		}
		return Frame{}, &DeviceError{Op: "read", Device: h.device, Err: h.exitError()}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (h *ffmpegHandle) exitError() error {
	tail := strings.TrimSpace(h.stderr.String())
	lower := strings.ToLower(tail)
	switch {
	case strings.Contains(lower, "device or resource busy"):
		return ErrDeviceBusy
	case strings.Contains(lower, "no such file or directory"):
		return ErrDeviceMissing
	case tail != "":
		return fmt.Errorf("ffmpeg exited: %s", tail)
	case h.waitErr != nil:
		return fmt.Errorf("ffmpeg exited: %w", h.waitErr)
	default:
		return errors.New("ffmpeg stream ended")
	}
}

func (h *ffmpegHandle) Close() error {
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.exited
		unlock(h.lock)
	})
	return nil
}

// splitJPEG tokenizes a concatenated MJPEG stream on SOI/EOI markers.
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it begins a marker.
		if n := len(data); n > 1 {
			return n - 1, nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
