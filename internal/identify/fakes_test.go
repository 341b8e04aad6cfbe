package identify_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"facewatch/internal/camera"
	"facewatch/internal/engine"
	"facewatch/internal/identify"
	"facewatch/internal/logging"
	"facewatch/internal/records"
)

type fakeEngine struct {
	mu   sync.Mutex
	sent []engine.Command
	err  error
}

func (e *fakeEngine) Send(cmd engine.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return &engine.WriteError{Command: cmd.String(), Err: e.err}
	}
	e.sent = append(e.sent, cmd)
	return nil
}

func (e *fakeEngine) setErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *fakeEngine) commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.sent))
	for i, c := range e.sent {
		out[i] = c.String()
	}
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[int64]*records.Record
	photos    map[int64][]records.Photo
	lookupErr error
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: map[int64]*records.Record{42: {ID: 42, Name: "Known Subject", NoOfCrimes: 3}},
		photos:  map[int64][]records.Photo{42: {{ID: 1, RecordID: 42, Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}}}},
		nextID:  100,
	}
}

func (s *fakeStore) GetRecord(_ context.Context, id int64) (*records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) GetRecordWithPhotos(ctx context.Context, id int64) (*records.Record, []records.Photo, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return rec, s.photos[id], nil
}

func (s *fakeStore) AddRecord(_ context.Context, rec records.NewRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.records[s.nextID] = &records.Record{ID: s.nextID, Name: rec.Name}
	return s.nextID, nil
}

func (s *fakeStore) AddPhoto(_ context.Context, id int64, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[id] = append(s.photos[id], records.Photo{RecordID: id, Data: data})
	return int64(len(s.photos[id])), nil
}

type fakeCamera struct {
	mu         sync.Mutex
	mode       camera.Mode
	captureErr error
	previewErr error
	captures   int
	enables    int
}

func (c *fakeCamera) EnablePreview(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enables++
	if c.previewErr != nil {
		return c.previewErr
	}
	c.mode = camera.ModePreview
	return nil
}

func (c *fakeCamera) DisablePreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == camera.ModePreview {
		c.mode = camera.ModeClosed
	}
}

func (c *fakeCamera) Capture(context.Context, string) (camera.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = camera.ModeClosed
	c.captures++
	if c.captureErr != nil {
		return camera.Frame{}, c.captureErr
	}
	return camera.Frame{Data: []byte{0xFF, 0xD8, 0x42, 0xFF, 0xD9}, Captured: time.Now()}, nil
}

func (c *fakeCamera) Mode() camera.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *fakeCamera) setCaptureErr(err error) {
	c.mu.Lock()
	c.captureErr = err
	c.mu.Unlock()
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (ts *tickers) factory(time.Duration) identify.Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	ts.all = append(ts.all, t)
	return t
}

func (ts *tickers) current() *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.all) == 0 {
		return nil
	}
	return ts.all[len(ts.all)-1]
}

type harness struct {
	t       *testing.T
	coord   *identify.Coordinator
	engine  *fakeEngine
	store   *fakeStore
	camera  *fakeCamera
	events  chan string
	tickers *tickers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		engine:  &fakeEngine{},
		store:   newFakeStore(),
		camera:  &fakeCamera{},
		events:  make(chan string),
		tickers: &tickers{},
	}
	dir := t.TempDir()
	coord, err := identify.New(identify.Options{
		Engine:       h.engine,
		Events:       h.events,
		Store:        h.store,
		Camera:       h.camera,
		DeviceName:   "/dev/video0",
		CapturePath:  filepath.Join(dir, "capture", "current_scan.jpg"),
		PhotoDir:     filepath.Join(dir, "photos"),
		TickInterval: time.Second,
		MaxAttempts:  10,
		NewTicker:    h.tickers.factory,
		Logger:       logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.coord = coord
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) await(m identify.Modality, cond func(identify.Status) bool) identify.Status {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := h.coord.Await(ctx, m, cond)
	if err != nil {
		h.t.Fatalf("timed out waiting on %s; last status %+v", m, s)
	}
	return s
}

func (h *harness) awaitState(m identify.Modality, state identify.State) identify.Status {
	h.t.Helper()
	return h.await(m, func(s identify.Status) bool { return s.State == state })
}

// reply returns once the coordinator has taken the line; because the channel
// is unbuffered, any later coordinator call observes its effects.
func (h *harness) reply(line string) {
	h.t.Helper()
	select {
	case h.events <- line:
	case <-time.After(5 * time.Second):
		h.t.Fatalf("reply %q not consumed", line)
	}
}

func (h *harness) tick() {
	h.t.Helper()
	ticker := h.tickers.current()
	if ticker == nil {
		h.t.Fatal("no ticker running")
	}
	select {
	case ticker.ch <- time.Now():
	case <-time.After(5 * time.Second):
		h.t.Fatal("tick not consumed")
	}
}
