package camera

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"facewatch/internal/logging"
)

func TestNewHotplugWatcherRequiresDevice(t *testing.T) {
	if w := NewHotplugWatcher("  ", nil, nil); w != nil {
		t.Fatal("expected nil watcher for empty device")
	}
	var w *HotplugWatcher
	if w.Running() {
		t.Fatal("nil watcher should not be running")
	}
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil watcher: %v", err)
	}
}

func TestHotplugMatcher(t *testing.T) {
	matcher := buildHotplugMatcher()
	add := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "video4linux"}}
	if !matcher.Evaluate(add) {
		t.Fatal("expected add to match")
	}
	remove := netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "video4linux"}}
	if !matcher.Evaluate(remove) {
		t.Fatal("expected remove to match")
	}
	block := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}
	if matcher.Evaluate(block) {
		t.Fatal("did not expect block subsystem to match")
	}
}

func TestHotplugHandleFiltersDevice(t *testing.T) {
	var got []HotplugEvent
	w := NewHotplugWatcher("/dev/video0", logging.NewNop(), func(ev HotplugEvent) { got = append(got, ev) })
	w.resolved = "/dev/video0"

	w.handle(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "video1"}})
	w.handle(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "video0"}})
	w.handle(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVPATH": "/devices/pci0000:00/video4linux/video0"}})

	if len(got) != 2 {
		t.Fatalf("expected two events for video0, got %v", got)
	}
	if got[0].Action != HotplugAdd || got[1].Action != HotplugRemove {
		t.Fatalf("unexpected actions %v", got)
	}
}
