package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	CaptureDir    string `toml:"capture_dir"`
	PhotoCacheDir string `toml:"photo_cache_dir"`
}

// Engine describes how the recognition engine subprocess is launched.
type Engine struct {
	// Launcher optionally wraps the interpreter (for example "prime-run").
	Launcher        string   `toml:"launcher"`
	Interpreter     string   `toml:"interpreter"`
	InterpreterArgs []string `toml:"interpreter_args"`
	Script          string   `toml:"script"`
	// WorkDir defaults to the directory containing Script.
	WorkDir         string `toml:"work_dir"`
	EventBuffer     int    `toml:"event_buffer"`
	ShutdownTimeout int    `toml:"shutdown_timeout"`
}

// Camera contains capture device settings.
type Camera struct {
	Device       string `toml:"device"`
	FFmpegBinary string `toml:"ffmpeg_binary"`
	LockPath     string `toml:"lock_path"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
	Hotplug      bool   `toml:"hotplug"`
}

// Webcam contains the live scanning policy.
type Webcam struct {
	TickInterval int `toml:"tick_interval"`
	MaxAttempts  int `toml:"max_attempts"`
}

// Store contains record store settings.
type Store struct {
	Path string `toml:"path"`
}

// API contains the HTTP control surface settings.
type API struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for facewatch.
//
// Configuration sections by subsystem:
//   - Paths: data, log, capture and photo cache directories
//   - Engine: recognition engine subprocess launch settings
//   - Camera: capture device, ffmpeg binary and device lock
//   - Webcam: live scan tick interval and attempt budget
//   - Store: record database location
//   - API: HTTP bind address
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Engine  Engine  `toml:"engine"`
	Camera  Camera  `toml:"camera"`
	Webcam  Webcam  `toml:"webcam"`
	Store   Store   `toml:"store"`
	API     API     `toml:"api"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/facewatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("facewatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the runtime writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.CaptureDir, c.Paths.PhotoCacheDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EngineWorkDir returns the directory the engine is started in.
func (c *Config) EngineWorkDir() string {
	if c.Engine.WorkDir != "" {
		return c.Engine.WorkDir
	}
	if c.Engine.Script == "" {
		return ""
	}
	return filepath.Dir(c.Engine.Script)
}

// CaptureFramePath is the fixed location one-shot webcam captures are written to.
func (c *Config) CaptureFramePath() string {
	return filepath.Join(c.Paths.CaptureDir, "current_scan.jpg")
}

// TickInterval returns the webcam capture cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Webcam.TickInterval) * time.Second
}

// ShutdownTimeout returns how long the engine is given to exit after stdin closes.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Engine.ShutdownTimeout) * time.Second
}

// LockPath returns the path of the daemon single-instance lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "facewatch.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
