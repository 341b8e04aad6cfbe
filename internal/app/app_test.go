package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"facewatch/internal/app"
	"facewatch/internal/engine"
	"facewatch/internal/identify"
	"facewatch/internal/logging"
	"facewatch/internal/records"
	"facewatch/internal/testsupport"
)

func startApp(t *testing.T, opts ...testsupport.ConfigOption) *app.App {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	a, err := app.Start(context.Background(), cfg, app.Options{Logger: logging.NewNop(), DisableHotplug: true})
	if err != nil {
		t.Fatalf("app.Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func awaitTerminal(t *testing.T, a *app.App, m identify.Modality) identify.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := a.Coordinator.Await(ctx, m, func(s identify.Status) bool { return s.State.Terminal() })
	if err != nil {
		t.Fatalf("await %s: %v (last state %s)", m, err, st.State)
	}
	return st
}

func TestEnrollThenIdentifyImage(t *testing.T) {
	a := startApp(t)
	ctx := context.Background()
	base := testsupport.BaseDir(a.Config)

	photo := filepath.Join(base, "enroll", "front.jpg")
	testsupport.WriteJPEG(t, photo)
	enrollment, err := a.Coordinator.Enroll(ctx, records.NewRecord{Name: "  jane   roe "}, []string{photo})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	select {
	case <-enrollment.Ack:
	case <-time.After(5 * time.Second):
		t.Fatal("engine never acknowledged enrollment")
	}

	query := filepath.Join(base, "queries", records.FormatID(enrollment.RecordID)+".jpg")
	testsupport.WriteJPEG(t, query)
	if err := a.Coordinator.SelectImage(ctx, query); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	st := awaitTerminal(t, a, identify.ModalityImage)
	if st.State != identify.StateFound {
		t.Fatalf("expected found, got %s (%s)", st.State, st.Reason)
	}
	if st.Result == nil || st.Result.Record == nil || st.Result.Record.Name != "Jane Roe" {
		t.Fatalf("unexpected result %+v", st.Result)
	}
}

func TestIdentifyUnknownSubject(t *testing.T) {
	a := startApp(t)
	query := filepath.Join(testsupport.BaseDir(a.Config), "stranger.jpg")
	testsupport.WriteJPEG(t, query)

	if err := a.Coordinator.SelectVideo(context.Background(), query); err != nil {
		t.Fatalf("SelectVideo: %v", err)
	}
	st := awaitTerminal(t, a, identify.ModalityVideo)
	if st.State != identify.StateNotFound || st.Reason != identify.ReasonUnknownSubject {
		t.Fatalf("expected not_found/unknown_subject, got %s/%s", st.State, st.Reason)
	}
}

func TestWebcamWithoutCamera(t *testing.T) {
	a := startApp(t)
	if a.Camera != nil {
		t.Fatal("expected no camera arbiter")
	}
	if err := a.Coordinator.WebcamOn(context.Background()); !errors.Is(err, identify.ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera, got %v", err)
	}
}

func TestCloseStopsEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	a, err := app.Start(context.Background(), cfg, app.Options{Logger: logging.NewNop(), DisableHotplug: true})
	if err != nil {
		t.Fatalf("app.Start: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-a.Engine.Done():
	default:
		t.Fatal("engine still running after Close")
	}
	if err := a.Coordinator.SelectImage(context.Background(), "/tmp/1.jpg"); !errors.Is(err, identify.ErrStopped) {
		t.Fatalf("expected ErrStopped after Close, got %v", err)
	}
}

func TestStartFailsWithoutScript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.Script = filepath.Join(testsupport.BaseDir(cfg), "missing.py")

	_, err := app.Start(context.Background(), cfg, app.Options{Logger: logging.NewNop()})
	var spawnErr *engine.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}

	// The store handle was released, so it can be reopened.
	store := testsupport.MustOpenStore(t, cfg)
	if store.Path() != cfg.Store.Path {
		t.Fatalf("unexpected store path %q", store.Path())
	}
}

func TestDependenciesReportInterpreter(t *testing.T) {
	a := startApp(t)
	found := false
	for _, dep := range a.Dependencies() {
		if dep.Name == "Interpreter" {
			found = true
			if !dep.Available {
				t.Fatalf("expected /bin/sh interpreter available: %s", dep.Detail)
			}
		}
	}
	if !found {
		t.Fatal("interpreter missing from dependency report")
	}
}

func TestSelectAfterEngineExitReturnsWriteError(t *testing.T) {
	// Exits once "start" has been read, as a crashed engine would.
	a := startApp(t, testsupport.WithEngineScript("IFS= read -r line\nexit 3\n"))
	select {
	case <-a.Engine.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not exit")
	}

	query := filepath.Join(testsupport.BaseDir(a.Config), "after-exit.jpg")
	testsupport.WriteJPEG(t, query)
	err := a.Coordinator.SelectImage(context.Background(), query)
	var writeErr *engine.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	st := a.Coordinator.Snapshot(identify.ModalityImage)
	if st.State != identify.StateRequesting || st.LastError == "" {
		t.Fatalf("expected requesting with error, got %+v", st)
	}
	if g := a.Coordinator.Gate(); g.State != identify.GateFree {
		t.Fatalf("undelivered request must not hold the engine: %+v", g)
	}
}
