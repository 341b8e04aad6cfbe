package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEventsTaken is returned when the event stream has already been handed out.
	ErrEventsTaken = errors.New("engine events already taken")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("engine supervisor closed")
)

// SpawnError reports that the engine could not be started.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn engine %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WriteError reports that a command did not reach the engine, typically
// because the engine exited and its stdin pipe is broken.
type WriteError struct {
	Command string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %q to engine: %v", e.Command, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
