package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"facewatch/internal/config"
	"facewatch/internal/logging"
	"facewatch/internal/metrics"
)

const maxLineBytes = 1 << 20

// Options describes how to launch the engine.
type Options struct {
	// Launcher optionally wraps the interpreter (for example "prime-run").
	Launcher        string
	Interpreter     string
	Args            []string
	Script          string
	WorkDir         string
	Capacity        int
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Collectors
}

// OptionsFromConfig maps the engine section of the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Launcher:        cfg.Engine.Launcher,
		Interpreter:     cfg.Engine.Interpreter,
		Args:            append([]string(nil), cfg.Engine.InterpreterArgs...),
		Script:          cfg.Engine.Script,
		WorkDir:         cfg.EngineWorkDir(),
		Capacity:        cfg.Engine.EventBuffer,
		ShutdownTimeout: cfg.ShutdownTimeout(),
	}
}

// Supervisor owns a running engine process.
type Supervisor struct {
	cmd     *exec.Cmd
	logger  *slog.Logger
	metrics *metrics.Collectors
	timeout time.Duration

	mu     sync.Mutex
	stdin  io.WriteCloser
	writer *bufio.Writer
	closed bool

	eventsMu sync.Mutex
	events   *Receiver
	taken    bool

	done    chan struct{}
	waitErr error
}

// Spawn launches the engine and starts its stdout and stderr readers.
func Spawn(opts Options) (*Supervisor, error) {
	program, args, err := buildArgv(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "engine")

	cmd := exec.Command(program, args...)
	cmd.Dir = opts.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Program: program, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Program: program, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Program: program, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Program: program, Err: err}
	}

	sender, receiver := NewBridge(opts.Capacity)
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Supervisor{
		cmd:     cmd,
		logger:  logger,
		metrics: opts.Metrics,
		timeout: timeout,
		stdin:   stdin,
		writer:  bufio.NewWriter(stdin),
		events:  receiver,
		done:    make(chan struct{}),
	}
	s.metrics.SetEngineRunning(true)
	logger.Info("engine started",
		logging.String(logging.FieldEventType, "engine_started"),
		logging.String("program", program),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("work_dir", opts.WorkDir),
	)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readStdout(stdout, sender)
	}()
	go func() {
		defer readers.Done()
		s.readStderr(stderr)
	}()
	go func() {
		readers.Wait()
		s.waitErr = cmd.Wait()
		s.metrics.SetEngineRunning(false)
		logger.Info("engine exited",
			logging.String(logging.FieldEventType, "engine_exited"),
			logging.Error(s.waitErr),
		)
		close(s.done)
	}()
	return s, nil
}

func buildArgv(opts Options) (string, []string, error) {
	interpreter := strings.TrimSpace(opts.Interpreter)
	script := strings.TrimSpace(opts.Script)
	if interpreter == "" {
		return "", nil, &SpawnError{Program: "<interpreter>", Err: errors.New("interpreter not configured")}
	}
	if script == "" {
		return "", nil, &SpawnError{Program: interpreter, Err: errors.New("engine script not configured")}
	}
	if _, err := os.Stat(script); err != nil {
		return "", nil, &SpawnError{Program: interpreter, Err: fmt.Errorf("engine script: %w", err)}
	}
	if _, err := exec.LookPath(interpreter); err != nil {
		return "", nil, &SpawnError{Program: interpreter, Err: err}
	}

	args := append(append([]string(nil), opts.Args...), script)
	launcher := strings.TrimSpace(opts.Launcher)
	if launcher == "" {
		return interpreter, args, nil
	}
	if _, err := exec.LookPath(launcher); err != nil {
		return "", nil, &SpawnError{Program: launcher, Err: err}
	}
	return launcher, append([]string{interpreter}, args...), nil
}

func (s *Supervisor) readStdout(r io.Reader, sender *Sender) {
	defer sender.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		s.metrics.EngineLine("stdout")
		if !sender.Send(line) {
			s.logger.Debug("event consumer dropped; stdout reader exiting")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("engine stdout read failed", logging.Error(err))
	}
}

func (s *Supervisor) readStderr(r io.Reader) {
	logger := logging.NewComponentLogger(s.logger, "engine-stderr")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.metrics.EngineLine("stderr")
		logger.Log(context.Background(), stderrLevel(line), line)
	}
}

// stderrLevel maps Python logging prefixes onto slog levels.
func stderrLevel(line string) slog.Level {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "CRITICAL"), strings.Contains(upper, "ERROR"), strings.HasPrefix(line, "Traceback"):
		return slog.LevelError
	case strings.Contains(upper, "WARNING"), strings.Contains(upper, "WARN "):
		return slog.LevelWarn
	case strings.Contains(upper, "DEBUG"):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Events hands over the consumer end of the stdout bridge. Only the first
// call succeeds; later calls return ErrEventsTaken.
func (s *Supervisor) Events() (*Receiver, error) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.taken {
		return nil, ErrEventsTaken
	}
	s.taken = true
	return s.events, nil
}

// Send writes one command line and flushes it. Concurrent callers are serialized.
func (s *Supervisor) Send(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	line := cmd.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.writer.WriteString(line + "\n"); err != nil {
		s.writer.Reset(s.stdin)
		return s.writeFailed(line, err)
	}
	if err := s.writer.Flush(); err != nil {
		s.writer.Reset(s.stdin)
		return s.writeFailed(line, err)
	}
	s.metrics.CommandSent(cmd.Verb())
	s.logger.Debug("engine command sent", logging.String("command", line))
	return nil
}

func (s *Supervisor) writeFailed(line string, err error) error {
	s.metrics.CommandFailed()
	s.logger.Warn("engine command write failed",
		logging.String(logging.FieldEventType, "engine_write_failed"),
		logging.String(logging.FieldErrorHint, "the engine process has likely exited; check engine-stderr output"),
		logging.String("command", line),
		logging.Error(err),
	)
	return &WriteError{Command: line, Err: err}
}

// Done is closed once the engine process has exited and both readers finished.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// ExitErr returns the process exit status once Done is closed.
func (s *Supervisor) ExitErr() error {
	select {
	case <-s.done:
		return s.waitErr
	default:
		return nil
	}
}

// Pid returns the engine process id.
func (s *Supervisor) Pid() int {
	return s.cmd.Process.Pid
}

// Close closes the engine's stdin and waits for it to exit, escalating to
// SIGTERM and then SIGKILL of the whole process group after the shutdown timeout.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	_ = s.stdin.Close()
	s.mu.Unlock()

	// Releases a stdout reader blocked on a full bridge, taken or not.
	s.events.Close()

	if s.waitFor(s.timeout) {
		return nil
	}
	pgid := -s.cmd.Process.Pid
	s.logger.Warn("engine did not exit after stdin closed; terminating",
		logging.String(logging.FieldEventType, "engine_terminate"),
		logging.String(logging.FieldImpact, "in-flight recognition is abandoned"),
		logging.Duration("timeout", s.timeout),
	)
	if err := unix.Kill(pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		s.logger.Warn("signal engine process group failed", logging.Error(err))
	}
	if s.waitFor(s.timeout) {
		return nil
	}
	if err := unix.Kill(pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill engine process group: %w", err)
	}
	if !s.waitFor(s.timeout) {
		return errors.New("engine did not exit after SIGKILL")
	}
	return nil
}

func (s *Supervisor) waitFor(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}
