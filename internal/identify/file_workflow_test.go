package identify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"facewatch/internal/identify"
)

func TestImageFoundOnlyAfterIdentityEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.coord.SelectImage(ctx, "/a/b.jpg"); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if s := h.coord.Snapshot(identify.ModalityImage); s.State != identify.StateRequesting {
		t.Fatalf("expected requesting, got %s", s.State)
	}
	if cmds := h.engine.commands(); len(cmds) != 1 || cmds[0] != "identify image /a/b.jpg" {
		t.Fatalf("unexpected commands %v", cmds)
	}

	h.reply("identity 42")
	s := h.awaitState(identify.ModalityImage, identify.StateFound)
	if s.Result == nil || s.Result.Record.ID != 42 || s.Result.Subject != "42" {
		t.Fatalf("unexpected result %+v", s.Result)
	}
	if len(s.Result.Photos) != 0 {
		t.Fatalf("image results carry no photos, got %v", s.Result.Photos)
	}
	if s.RequestID == "" {
		t.Fatal("expected a request id")
	}
}

func TestImageStaysRequestingWithoutReply(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.SelectImage(context.Background(), "x.jpg"); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	h.reply("ready")
	h.reply("model loaded")
	time.Sleep(50 * time.Millisecond)
	if s := h.coord.Snapshot(identify.ModalityImage); s.State != identify.StateRequesting {
		t.Fatalf("expected to remain requesting, got %s", s.State)
	}
}

func TestSingleOutstandingRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.coord.SelectImage(ctx, "/one.jpg"); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if err := h.coord.SelectImage(ctx, "/two.jpg"); !errors.Is(err, identify.ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}
	if err := h.coord.SelectVideo(ctx, "/clip.mp4"); !errors.Is(err, identify.ErrEngineBusy) {
		t.Fatalf("expected ErrEngineBusy, got %v", err)
	}
	if cmds := h.engine.commands(); len(cmds) != 1 {
		t.Fatalf("expected exactly one command on the wire, got %v", cmds)
	}

	h.reply("unknown")
	h.awaitState(identify.ModalityImage, identify.StateNotFound)
	if err := h.coord.SelectVideo(ctx, "/clip.mp4"); err != nil {
		t.Fatalf("SelectVideo after reply: %v", err)
	}
}

func TestNotFoundReasons(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		setup  func(h *harness)
		reason identify.Reason
	}{
		{name: "no match reply", reply: "unknown", reason: identify.ReasonUnknownSubject},
		{name: "unparsable subject", reply: "identity abc", reason: identify.ReasonUnknownSubject},
		{name: "unknown record", reply: "identity 7", reason: identify.ReasonUnknownSubject},
		{
			name:   "store failure",
			reply:  "identity 42",
			setup:  func(h *harness) { h.store.lookupErr = errors.New("disk I/O error") },
			reason: identify.ReasonLookupError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			if err := h.coord.SelectImage(context.Background(), "/a.jpg"); err != nil {
				t.Fatalf("SelectImage: %v", err)
			}
			h.reply(tt.reply)
			s := h.awaitState(identify.ModalityImage, identify.StateNotFound)
			if s.Reason != tt.reason {
				t.Fatalf("expected reason %s, got %s", tt.reason, s.Reason)
			}
			if tt.reason == identify.ReasonLookupError && s.LastError == "" {
				t.Fatal("expected lookup error detail")
			}
		})
	}
}

func TestNewSelectionDiscardsPriorResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.coord.SelectImage(ctx, "/a.jpg")
	h.reply("identity 42")
	h.awaitState(identify.ModalityImage, identify.StateFound)

	if err := h.coord.SelectImage(ctx, "/b.jpg"); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	s := h.coord.Snapshot(identify.ModalityImage)
	if s.State != identify.StateRequesting || s.Result != nil || s.Input != "/b.jpg" {
		t.Fatalf("expected fresh request, got %+v", s)
	}
}

func TestResetOrphansGateAndDiscardsLateReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.coord.SelectImage(ctx, "/a.jpg")
	if err := h.coord.Reset(ctx, identify.ModalityImage); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s := h.coord.Snapshot(identify.ModalityImage); s.State != identify.StateIdle {
		t.Fatalf("expected idle, got %s", s.State)
	}
	// The abandoned reply is still owed, so nobody may send until it arrives.
	if err := h.coord.SelectVideo(ctx, "/clip.mp4"); !errors.Is(err, identify.ErrEngineBusy) {
		t.Fatalf("expected ErrEngineBusy while orphaned, got %v", err)
	}

	h.reply("identity 42")
	if s := h.coord.Snapshot(identify.ModalityImage); s.State != identify.StateIdle {
		t.Fatalf("late reply must be discarded, got %s", s.State)
	}
	if err := h.coord.SelectVideo(ctx, "/clip.mp4"); err != nil {
		t.Fatalf("SelectVideo after discard: %v", err)
	}
	if s := h.coord.Snapshot(identify.ModalityVideo); s.State != identify.StateRequesting {
		t.Fatalf("expected video requesting, got %s", s.State)
	}
}

func TestSecondResetStopsWaitingForSilentEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.coord.SelectImage(ctx, "/a.jpg"); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if err := h.coord.Reset(ctx, identify.ModalityImage); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if g := h.coord.Gate(); g.State != identify.GateOrphaned {
		t.Fatalf("gate = %+v, want orphaned", g)
	}

	err := h.coord.SelectImage(ctx, "/b.jpg")
	if !errors.Is(err, identify.ErrEngineBusy) {
		t.Fatalf("expected ErrEngineBusy, got %v", err)
	}
	if s := h.coord.Snapshot(identify.ModalityImage); s.LastError == "" {
		t.Fatalf("blocked selection should be reported, got %+v", s)
	}

	startWebcam(t, h)
	h.tick()
	s := h.await(identify.ModalityWebcam, func(s identify.Status) bool { return s.LastError != "" })
	if s.Attempts != 0 || s.State != identify.StateAwaitingInput {
		t.Fatalf("deferred scan must not count: %+v", s)
	}

	if err := h.coord.Reset(ctx, identify.ModalityImage); err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if g := h.coord.Gate(); g.State != identify.GateFree {
		t.Fatalf("gate = %+v, want free", g)
	}
	if err := h.coord.SelectVideo(ctx, "/clip.mp4"); err != nil {
		t.Fatalf("SelectVideo after second reset: %v", err)
	}
	if g := h.coord.Gate(); g.State != identify.GateActive || g.Owner != identify.ModalityVideo {
		t.Fatalf("gate = %+v, want active/video", g)
	}
	want := []string{"identify image /a.jpg", "identify video /clip.mp4"}
	if got := h.engine.commands(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("commands = %v, want %v", got, want)
	}
}

func TestWriteErrorLeavesRequestingAndFreesEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setErr(errors.New("broken pipe"))

	err := h.coord.SelectImage(ctx, "/a.jpg")
	if err == nil {
		t.Fatal("expected write error")
	}
	s := h.coord.Snapshot(identify.ModalityImage)
	if s.State != identify.StateRequesting || s.LastError == "" {
		t.Fatalf("expected requesting with error, got %+v", s)
	}

	h.engine.setErr(nil)
	if err := h.coord.SelectVideo(ctx, "/clip.mp4"); err != nil {
		t.Fatalf("engine should be free after failed write: %v", err)
	}
	if err := h.coord.SelectImage(ctx, "/a.jpg"); !errors.Is(err, identify.ErrEngineBusy) {
		t.Fatalf("expected ErrEngineBusy while video in flight, got %v", err)
	}
}

func TestVideoFoundIncludesPhotos(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.SelectVideo(context.Background(), "/clip.mp4"); err != nil {
		t.Fatalf("SelectVideo: %v", err)
	}
	if cmds := h.engine.commands(); cmds[0] != "identify video /clip.mp4" {
		t.Fatalf("unexpected command %q", cmds[0])
	}
	h.reply("identity 42 0.93")
	s := h.awaitState(identify.ModalityVideo, identify.StateFound)
	if len(s.Result.Photos) != 1 {
		t.Fatalf("expected one materialised photo, got %v", s.Result.Photos)
	}
}

func TestUnsolicitedReplyIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.reply("identity 42")
	for _, s := range h.coord.Snapshots() {
		if s.State != identify.StateIdle {
			t.Fatalf("unsolicited reply changed %s to %s", s.Modality, s.State)
		}
	}
	if err := h.coord.SelectImage(context.Background(), "/a.jpg"); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
}

func TestSelectRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.SelectImage(context.Background(), " "); err == nil {
		t.Fatal("expected empty path to be rejected")
	}
	if err := h.coord.SelectImage(context.Background(), "/a\nstart"); err == nil {
		t.Fatal("expected multi-line path to be rejected")
	}
	if len(h.engine.commands()) != 0 {
		t.Fatal("nothing should reach the engine")
	}
}
