package config

const (
	defaultDataDir         = "~/.local/share/facewatch"
	defaultLogDir          = "~/.local/share/facewatch/logs"
	defaultCaptureDir      = "~/.local/share/facewatch/capture"
	defaultPhotoCacheDir   = "~/.cache/facewatch/photos"
	defaultInterpreter     = "python3"
	defaultEventBuffer     = 100
	defaultShutdownTimeout = 5
	defaultCameraDevice    = "/dev/video0"
	defaultFFmpegBinary    = "ffmpeg"
	defaultTickInterval    = 2
	defaultMaxAttempts     = 10
	defaultAPIBind         = "127.0.0.1:7590"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			CaptureDir:    defaultCaptureDir,
			PhotoCacheDir: defaultPhotoCacheDir,
		},
		Engine: Engine{
			Interpreter:     defaultInterpreter,
			InterpreterArgs: []string{"-u"},
			EventBuffer:     defaultEventBuffer,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Camera: Camera{
			Device:       defaultCameraDevice,
			FFmpegBinary: defaultFFmpegBinary,
			Hotplug:      true,
		},
		Webcam: Webcam{
			TickInterval: defaultTickInterval,
			MaxAttempts:  defaultMaxAttempts,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
