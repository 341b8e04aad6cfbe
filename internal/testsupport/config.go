package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"facewatch/internal/config"
)

// EchoEngine is a shell engine that answers "identify <kind> <dir>/<stem>.<ext>"
// with "identity <stem>" and "add <id> ..." with "added <id>".
const EchoEngine = `while IFS= read -r line; do
  case "$line" in
    "identify "*) p="${line#identify * }"; b="${p##*/}"; echo "identity ${b%%.*}" ;;
    "add "*) set -- $line; echo "added $2" ;;
  esac
done
`

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The engine is EchoEngine run by /bin/sh and no camera is configured.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CaptureDir = filepath.Join(base, "capture")
	cfgVal.Paths.PhotoCacheDir = filepath.Join(base, "photos")
	cfgVal.Store.Path = filepath.Join(base, "data", "records.db")
	cfgVal.Engine.Interpreter = "/bin/sh"
	cfgVal.Engine.InterpreterArgs = nil
	cfgVal.Engine.ShutdownTimeout = 2
	cfgVal.Camera.Device = ""
	cfgVal.Camera.Hotplug = false
	cfgVal.Camera.LockPath = filepath.Join(base, "data", "camera.lock")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	WithEngineScript(EchoEngine)(builder)

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEngineScript replaces the engine script body.
func WithEngineScript(body string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "engine.sh")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			b.t.Fatalf("write engine script: %v", err)
		}
		b.cfg.Engine.Script = path
	}
}

// WithCameraDevice sets the capture device path on the test config.
func WithCameraDevice(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Camera.Device = path
	}
}

// WithWebcam overrides the live scanning policy.
func WithWebcam(tickSeconds, maxAttempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Webcam.TickInterval = tickSeconds
		b.cfg.Webcam.MaxAttempts = maxAttempts
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
