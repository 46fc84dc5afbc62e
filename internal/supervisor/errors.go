package supervisor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned by Run while a previous run is still in progress.
	ErrBusy = errors.New("a process is already running")
	// ErrClosed is returned by Run after the Supervisor has been shut down.
	ErrClosed = errors.New("supervisor is closed")
	// ErrNothingToStop is returned by Stop when no process is live.
	ErrNothingToStop = errors.New("no running process to stop")
	// ErrCancelled is returned by Run when Stop was requested before the
	// process could start.
	ErrCancelled = errors.New("run cancelled")
	// ErrStartTimeout is wrapped by StartError when the launch did not
	// complete in time.
	ErrStartTimeout = errors.New("process did not start in time")
)

// ConfigError reports an unusable run configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ResolutionError means the program could not be found on the composed
// search path.
type ResolutionError struct {
	Program string
	Version string
	Root    string
	Command string
	Err     error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("could not find %q", e.Program)
	if e.Version != "" {
		msg += " for node " + e.Version
	}
	if e.Root != "" && e.Version != "" {
		return msg + fmt.Sprintf(" (version root %s, command %q)", e.Root, e.Command)
	}
	return msg + fmt.Sprintf(" (command %q)", e.Command)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// StartError means the process failed to launch.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// RuntimeExit reports a child that exited on its own with a nonzero code.
type RuntimeExit struct {
	Code int
}

func (e *RuntimeExit) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// TerminationTimeout means the graceful stop did not finish in time and the
// process tree is being killed.
type TerminationTimeout struct {
	PID   int
	After time.Duration
}

func (e *TerminationTimeout) Error() string {
	return fmt.Sprintf("process %d did not exit within %s", e.PID, e.After)
}

// TerminationFailure means the process was still alive after the forced kill.
type TerminationFailure struct {
	PID int
}

func (e *TerminationFailure) Error() string {
	return fmt.Sprintf("process %d might still be running", e.PID)
}
