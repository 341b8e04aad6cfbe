package main

import (
	"errors"
	"path/filepath"
	"testing"

	"facewatch/internal/testsupport"
)

func TestEnrollIdentifyAndShowRecord(t *testing.T) {
	env := setupCLITestEnv(t)

	photo := filepath.Join(env.baseDir, "photos-in", "front.jpg")
	testsupport.WriteFile(t, photo, 128)
	out, _, err := runCLI(t, []string{"enroll", "--name", "jane  roe", "--crimes", "3", "--location", "Harbor", "--photo", photo}, env.configPath)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	requireContains(t, out, "Enrolled record 1 with 1 photo(s)")
	requireContains(t, out, "Engine acknowledged enrollment")

	query := filepath.Join(env.baseDir, "query", "1.jpg")
	testsupport.WriteJPEG(t, query)
	out, _, err = runCLI(t, []string{"identify", "image", query, "--wait", "10s"}, env.configPath)
	if err != nil {
		t.Fatalf("identify image: %v\n%s", err, out)
	}
	requireContains(t, out, "Image: FOUND")
	requireContains(t, out, "Jane Roe")

	out, _, err = runCLI(t, []string{"record", "show", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("record show: %v", err)
	}
	requireContains(t, out, "Harbor")
	requireContains(t, out, "Photos: 1")

	out, _, err = runCLI(t, []string{"record", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("record list: %v", err)
	}
	requireContains(t, out, "Jane Roe")
}

func TestIdentifyVideoUnknownSubject(t *testing.T) {
	env := setupCLITestEnv(t)
	query := filepath.Join(env.baseDir, "stranger.mp4")
	testsupport.WriteFile(t, query, 64)

	out, _, err := runCLI(t, []string{"identify", "video", query, "--wait", "10s"}, env.configPath)
	if !errors.Is(err, errNoMatch) {
		t.Fatalf("expected errNoMatch, got %v\n%s", err, out)
	}
	requireContains(t, out, "Video: NOT FOUND (unknown_subject)")
}

func TestRecordShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"record", "show", "99"}, env.configPath); err == nil {
		t.Fatal("expected error for missing record")
	}
	if _, _, err := runCLI(t, []string{"record", "show", "zero"}, env.configPath); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestEnrollRequiresName(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"enroll"}, env.configPath); err == nil {
		t.Fatal("expected missing --name to fail")
	}
	if _, _, err := runCLI(t, []string{"enroll", "--name", "x", "--arrested", "yesterday"}, env.configPath); err == nil {
		t.Fatal("expected bad --arrested to fail")
	}
}
