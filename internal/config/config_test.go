package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"facewatch/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FACEWATCH_ENGINE_SCRIPT", "~/engine/main.py")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "facewatch")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Engine.Script != filepath.Join(tempHome, "engine", "main.py") {
		t.Fatalf("expected script from env, got %q", cfg.Engine.Script)
	}
	if cfg.EngineWorkDir() != filepath.Join(tempHome, "engine") {
		t.Fatalf("expected work dir to default to script dir, got %q", cfg.EngineWorkDir())
	}
	if cfg.Store.Path != filepath.Join(wantData, "records.db") {
		t.Fatalf("unexpected store path: %q", cfg.Store.Path)
	}
	if cfg.Camera.LockPath != filepath.Join(wantData, "camera.lock") {
		t.Fatalf("unexpected camera lock path: %q", cfg.Camera.LockPath)
	}
	if cfg.Engine.EventBuffer != 100 {
		t.Fatalf("expected event buffer 100, got %d", cfg.Engine.EventBuffer)
	}
	if cfg.Webcam.MaxAttempts != 10 {
		t.Fatalf("expected 10 webcam attempts, got %d", cfg.Webcam.MaxAttempts)
	}
	if cfg.TickInterval() != 2*time.Second {
		t.Fatalf("expected 2s tick, got %s", cfg.TickInterval())
	}
	if got := cfg.CaptureFramePath(); filepath.Base(got) != "current_scan.jpg" {
		t.Fatalf("unexpected capture frame path %q", got)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := []byte(`[paths]
data_dir = "~/fw"

[engine]
launcher = "prime-run"
interpreter = "python"
interpreter_args = ["-u", " "]
script = "~/engine/main.py"
work_dir = "~/engine-work"

[webcam]
tick_interval = 3
max_attempts = 4

[logging]
format = "JSON"
level = "Debug"
`)
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "fw") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Engine.Launcher != "prime-run" || cfg.Engine.Interpreter != "python" {
		t.Fatalf("unexpected engine launch settings: %+v", cfg.Engine)
	}
	if len(cfg.Engine.InterpreterArgs) != 1 || cfg.Engine.InterpreterArgs[0] != "-u" {
		t.Fatalf("expected blank interpreter args trimmed, got %v", cfg.Engine.InterpreterArgs)
	}
	if cfg.EngineWorkDir() != filepath.Join(tempHome, "engine-work") {
		t.Fatalf("unexpected work dir: %q", cfg.EngineWorkDir())
	}
	if cfg.Webcam.TickInterval != 3 || cfg.Webcam.MaxAttempts != 4 {
		t.Fatalf("unexpected webcam settings: %+v", cfg.Webcam)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging settings, got %+v", cfg.Logging)
	}
}

func TestCameraDeviceEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FACEWATCH_CAMERA_DEVICE", "/dev/video2")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Camera.Device != "/dev/video2" {
		t.Fatalf("expected env device override, got %q", cfg.Camera.Device)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"event buffer", func(c *config.Config) { c.Engine.EventBuffer = 0 }, "engine.event_buffer"},
		{"tick interval", func(c *config.Config) { c.Webcam.TickInterval = 0 }, "webcam.tick_interval"},
		{"max attempts", func(c *config.Config) { c.Webcam.MaxAttempts = -1 }, "webcam.max_attempts"},
		{"half resolution", func(c *config.Config) { c.Camera.Width = 640 }, "camera.width"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if decoded.Webcam.MaxAttempts != 10 {
		t.Fatalf("unexpected sample max attempts: %d", decoded.Webcam.MaxAttempts)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}
