package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestSplitJPEG(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0x10, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0x20, 0x21, 0xFF, 0xD9}
	stream := append(append(append([]byte{0x00, 0x01}, a...), 0x55), b...)
	stream = append(stream, 0xFF, 0xD8, 0x30) // truncated trailing frame

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Buffer(make([]byte, 4), 1024)
	scanner.Split(splitJPEG)
	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, bytes.Clone(scanner.Bytes()))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(frames) != 2 || !bytes.Equal(frames[0], a) || !bytes.Equal(frames[1], b) {
		t.Fatalf("unexpected frames %x", frames)
	}
}

func TestFFmpegDeviceMissingNode(t *testing.T) {
	dev := &FFmpegDevice{Path: filepath.Join(t.TempDir(), "video9"), Binary: "ffmpeg"}
	_, err := dev.Open(context.Background())
	if !errors.Is(err, ErrDeviceMissing) {
		t.Fatalf("expected ErrDeviceMissing, got %v", err)
	}
}

func TestFFmpegDeviceBusyWhenLocked(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "video0")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("write node: %v", err)
	}
	lockPath := filepath.Join(dir, "camera.lock")
	other := flock.New(lockPath)
	if ok, err := other.TryLock(); !ok || err != nil {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	defer other.Unlock()

	dev := &FFmpegDevice{Path: node, Binary: "ffmpeg", LockPath: lockPath}
	_, err := dev.Open(context.Background())
	if !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy, got %v", err)
	}
}

func TestFFmpegDeviceReadsFramesFromStub(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "video0")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("write node: %v", err)
	}
	stub := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\nprintf '\\377\\330\\001\\377\\331'\nexec sleep 30\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	lockPath := filepath.Join(dir, "camera.lock")
	dev := &FFmpegDevice{Path: node, Binary: stub, LockPath: lockPath}

	handle, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame, err := handle.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(frame.Data, []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}) {
		t.Fatalf("unexpected frame %x", frame.Data)
	}

	// The lock is held while the handle is open and released on Close.
	other := flock.New(lockPath)
	if ok, _ := other.TryLock(); ok {
		t.Fatal("expected device lock to be held")
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ok, err := other.TryLock(); !ok || err != nil {
		t.Fatalf("expected lock to be free after Close: ok=%v err=%v", ok, err)
	}
	_ = other.Unlock()
}

func TestFFmpegHandleReportsBusyFromStderr(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "video0")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("write node: %v", err)
	}
	stub := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\necho \"[video4linux2] ioctl(VIDIOC_STREAMON): Device or resource busy\" >&2\nexit 1\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	dev := &FFmpegDevice{Path: node, Binary: stub}
	handle, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer handle.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := handle.ReadFrame(ctx); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy, got %v", err)
	}
}
