package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	if err := c.normalizeCamera(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CaptureDir) == "" {
		c.Paths.CaptureDir = filepath.Join(c.Paths.DataDir, "capture")
	}
	if c.Paths.CaptureDir, err = expandPath(c.Paths.CaptureDir); err != nil {
		return fmt.Errorf("paths.capture_dir: %w", err)
	}
	if c.Paths.PhotoCacheDir, err = expandPath(strings.TrimSpace(c.Paths.PhotoCacheDir)); err != nil {
		return fmt.Errorf("paths.photo_cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() error {
	if strings.TrimSpace(c.Engine.Script) == "" {
		if value, ok := os.LookupEnv("FACEWATCH_ENGINE_SCRIPT"); ok {
			c.Engine.Script = value
		}
	}
	var err error
	if c.Engine.Script, err = expandPath(strings.TrimSpace(c.Engine.Script)); err != nil {
		return fmt.Errorf("engine.script: %w", err)
	}
	if c.Engine.WorkDir, err = expandPath(strings.TrimSpace(c.Engine.WorkDir)); err != nil {
		return fmt.Errorf("engine.work_dir: %w", err)
	}
	c.Engine.Launcher = strings.TrimSpace(c.Engine.Launcher)
	c.Engine.Interpreter = strings.TrimSpace(c.Engine.Interpreter)
	if c.Engine.Interpreter == "" {
		c.Engine.Interpreter = defaultInterpreter
	}
	args := c.Engine.InterpreterArgs[:0]
	for _, arg := range c.Engine.InterpreterArgs {
		if arg = strings.TrimSpace(arg); arg != "" {
			args = append(args, arg)
		}
	}
	c.Engine.InterpreterArgs = args
	if c.Engine.ShutdownTimeout <= 0 {
		c.Engine.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}

func (c *Config) normalizeCamera() error {
	if value, ok := os.LookupEnv("FACEWATCH_CAMERA_DEVICE"); ok && strings.TrimSpace(value) != "" {
		c.Camera.Device = value
	}
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	if c.Camera.Device == "" {
		c.Camera.Device = defaultCameraDevice
	}
	c.Camera.FFmpegBinary = strings.TrimSpace(c.Camera.FFmpegBinary)
	if c.Camera.FFmpegBinary == "" {
		c.Camera.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Camera.LockPath) == "" {
		c.Camera.LockPath = filepath.Join(c.Paths.DataDir, "camera.lock")
	}
	var err error
	if c.Camera.LockPath, err = expandPath(c.Camera.LockPath); err != nil {
		return fmt.Errorf("camera.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = filepath.Join(c.Paths.DataDir, "records.db")
	}
	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
