package ui

import (
	"context"
	"errors"
	"io"

	"github.com/harshul/apprunner/internal/console"
	"github.com/harshul/apprunner/internal/supervisor"
)

// ExitInterrupted is the exit code after the run was stopped by ctx.
const ExitInterrupted = 130

// RunPlain runs cfg without the console, writing output to w line by line.
// It returns when the process exits, or stops it when ctx is cancelled. The
// returned code is the process exit code.
func RunPlain(ctx context.Context, ctl Controller, cfg supervisor.RunConfig, w io.Writer) (int, error) {
	events := ctl.Events()
	runErr := make(chan error, 1)
	go func() { runErr <- ctl.Run(cfg) }()

	var (
		code        int
		failure     error
		started     bool
		interrupted bool
		done        = ctx.Done()
	)
	for {
		select {
		case err := <-runErr:
			runErr = nil
			if errors.Is(err, supervisor.ErrBusy) || errors.Is(err, supervisor.ErrClosed) {
				ctl.HandleShutdown(supervisor.ChoiceExitWithoutStopping)
				return 1, err
			}

		case <-done:
			done = nil
			interrupted = true
			go ctl.HandleShutdown(supervisor.ChoiceStopAndExit)

		case ev, ok := <-events:
			if !ok {
				if interrupted {
					return ExitInterrupted, failure
				}
				return code, failure
			}
			switch ev := ev.(type) {
			case supervisor.LogEvent:
				writeSegments(w, ev.Segments)
			case supervisor.StateEvent:
				switch {
				case ev.State == supervisor.Failed:
					code, failure = 1, ev.Err
				case ev.State == supervisor.Idle && started:
					if ev.ExitCode != nil && failure == nil {
						code = *ev.ExitCode
					}
					if !interrupted {
						ctl.HandleShutdown(supervisor.ChoiceExitWithoutStopping)
					}
				case ev.State.Live():
					started = true
				}
			}
		}
	}
}

// writeSegments writes colored segments with their style and default ones
// as is, so plain output keeps the terminal's own foreground.
func writeSegments(w io.Writer, segs []console.Segment) {
	for _, seg := range segs {
		if seg.Style == console.DefaultStyle {
			io.WriteString(w, seg.Text)
			continue
		}
		io.WriteString(w, seg.Render())
	}
}
