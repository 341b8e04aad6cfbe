package camera

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"facewatch/internal/logging"
)

// HotplugAction is the uevent action reported to handlers.
type HotplugAction string

const (
	HotplugAdd    HotplugAction = "add"
	HotplugRemove HotplugAction = "remove"
)

// HotplugEvent reports the configured device appearing or disappearing.
type HotplugEvent struct {
	Action HotplugAction
	Device string
}

// HotplugWatcher listens for video4linux uevents on the kernel netlink socket.
type HotplugWatcher struct {
	logger  *slog.Logger
	handler func(HotplugEvent)
	device  string

	mu       sync.Mutex
	conn     *netlink.UEventConn
	quit     chan struct{}
	running  bool
	resolved string
}

// NewHotplugWatcher returns nil when device is empty.
func NewHotplugWatcher(device string, logger *slog.Logger, handler func(HotplugEvent)) *HotplugWatcher {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	return &HotplugWatcher{
		logger:  logging.NewComponentLogger(logger, "camera-hotplug"),
		handler: handler,
		device:  device,
	}
}

// Start connects to netlink. Failure to connect is logged and not returned;
// webcam scanning still works without hotplug notifications.
func (w *HotplugWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	// Symlinks such as /dev/v4l/by-id/... vanish on removal, so resolve now.
	w.resolved = w.device
	if target, err := filepath.EvalSymlinks(w.device); err == nil {
		w.resolved = target
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.logger.Warn("failed to connect to netlink socket; camera hotplug disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "hotplug_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the process may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "preview is not re-enabled automatically after reconnecting the camera"),
		)
		return nil
	}
	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true
	go w.loop(ctx, conn, w.quit)

	w.logger.Info("camera hotplug watcher started",
		logging.String(logging.FieldEventType, "hotplug_started"),
		logging.String("device", w.device),
	)
	return nil
}

// Stop closes the netlink socket.
func (w *HotplugWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.quit)
	w.quit = nil
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
}

// Running reports whether the watcher is connected.
func (w *HotplugWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *HotplugWatcher) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildHotplugMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handle(uevent)
		case err := <-errs:
			w.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "hotplug_monitor_error"),
			)
		}
	}
}

// buildHotplugMatcher matches SUBSYSTEM=video4linux with ACTION=add|remove.
func buildHotplugMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (w *HotplugWatcher) handle(uevent netlink.UEvent) {
	devname := deviceName(uevent)
	if devname == "" {
		return
	}
	w.mu.Lock()
	resolved := w.resolved
	w.mu.Unlock()
	if devname != w.device && devname != resolved {
		w.logger.Debug("ignoring uevent for other device", logging.String("device", devname))
		return
	}
	ev := HotplugEvent{Action: HotplugAction(uevent.Action), Device: w.device}
	w.logger.Info("camera hotplug event",
		logging.String(logging.FieldEventType, "hotplug_"+string(ev.Action)),
		logging.String("device", devname),
	)
	if w.handler != nil {
		w.handler(ev)
	}
}

func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	return "/dev/" + filepath.Base(devpath)
}
