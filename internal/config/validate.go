package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateWebcam(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEngine() error {
	if c.Engine.EventBuffer <= 0 {
		return errors.New("engine.event_buffer must be positive")
	}
	if c.Engine.Interpreter == "" {
		return errors.New("engine.interpreter must be set")
	}
	return nil
}

func (c *Config) validateCamera() error {
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return errors.New("camera.width and camera.height must not be negative")
	}
	if (c.Camera.Width == 0) != (c.Camera.Height == 0) {
		return errors.New("camera.width and camera.height must be set together")
	}
	return nil
}

func (c *Config) validateWebcam() error {
	if c.Webcam.TickInterval <= 0 {
		return errors.New("webcam.tick_interval must be positive")
	}
	if c.Webcam.MaxAttempts <= 0 {
		return errors.New("webcam.max_attempts must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
