//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harshul/apprunner/internal/console"
	"github.com/harshul/apprunner/internal/proctree"
)

const eventTimeout = 5 * time.Second

type countingKiller struct {
	calls atomic.Int32
	next  proctree.TreeKiller
}

func (k *countingKiller) KillTree(pid int) bool {
	k.calls.Add(1)
	return k.next.KillTree(pid)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(s *Supervisor) *recorder {
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for e := range s.Events() {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, desc string, match func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for time.Now().Before(deadline) {
		for _, e := range r.snapshot() {
			if match(e) {
				return e
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; got %s", desc, describe(r.snapshot()))
	return nil
}

func (r *recorder) count(match func(Event) bool) int {
	n := 0
	for _, e := range r.snapshot() {
		if match(e) {
			n++
		}
	}
	return n
}

func describe(events []Event) string {
	var parts []string
	for _, e := range events {
		switch e := e.(type) {
		case LogEvent:
			parts = append(parts, "log:"+strings.TrimSpace(e.Text()))
		case StateEvent:
			parts = append(parts, "state:"+e.State.String())
		}
	}
	return strings.Join(parts, ", ")
}

func isState(st State) func(Event) bool {
	return func(e Event) bool {
		ev, ok := e.(StateEvent)
		return ok && ev.State == st
	}
}

func logContains(text string) func(Event) bool {
	return func(e Event) bool {
		ev, ok := e.(LogEvent)
		return ok && strings.Contains(ev.Text(), text)
	}
}

func newTestSupervisor(t *testing.T, opts Options) (*Supervisor, *recorder) {
	t.Helper()
	if opts.GracePeriod == 0 {
		opts.GracePeriod = 300 * time.Millisecond
	}
	if opts.KillWait == 0 {
		opts.KillWait = 2 * time.Second
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 2 * time.Second
	}
	s := New(opts)
	r := record(s)
	t.Cleanup(s.StopAndExit)
	return s, r
}

func TestRunReportsExitCode(t *testing.T) {
	s, r := newTestSupervisor(t, Options{})

	err := s.Run(RunConfig{Name: "web", WorkDir: t.TempDir(), Command: `sh -c 'echo hello; exit 3'`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	r.waitFor(t, "stdout output", func(e Event) bool {
		ev, ok := e.(LogEvent)
		return ok && ev.Source == SourceStdout && strings.Contains(ev.Text(), "hello")
	})
	ev := r.waitFor(t, "exit", func(e Event) bool {
		ev, ok := e.(StateEvent)
		return ok && ev.State == Idle && ev.ExitCode != nil
	}).(StateEvent)

	if *ev.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", *ev.ExitCode)
	}
	var exit *RuntimeExit
	if !errors.As(ev.Err, &exit) || exit.Code != 3 {
		t.Errorf("Err = %v, want RuntimeExit{3}", ev.Err)
	}
	r.waitFor(t, "exit message", logContains("Process finished with exit code 3"))
}

func TestRunStyledOutput(t *testing.T) {
	s, r := newTestSupervisor(t, Options{})

	err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: `sh -c "printf '\033[31mred\033[0m plain\n'"`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	r.waitFor(t, "exit", isState(Idle))

	var red, plain bool
	for _, e := range r.snapshot() {
		ev, ok := e.(LogEvent)
		if !ok || ev.Source != SourceStdout {
			continue
		}
		for _, seg := range ev.Segments {
			if strings.Contains(seg.Text, "\x1b") {
				t.Errorf("escape sequence leaked into %q", seg.Text)
			}
			if strings.Contains(seg.Text, "red") && seg.Style.Foreground == console.Red {
				red = true
			}
			if strings.Contains(seg.Text, "plain") && seg.Style == console.DefaultStyle {
				plain = true
			}
		}
	}
	if !red || !plain {
		t.Errorf("styled segments not found (red=%v plain=%v): %s", red, plain, describe(r.snapshot()))
	}
}

func TestStopGracefulSkipsTreeKill(t *testing.T) {
	killer := &countingKiller{next: proctree.NewKiller(nil)}
	s, r := newTestSupervisor(t, Options{Killer: killer, GracePeriod: 3 * time.Second})

	if err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: "sleep 30"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.State() != Running {
		t.Fatalf("State() = %s, want running", s.State())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := killer.calls.Load(); got != 0 {
		t.Errorf("KillTree called %d times, want 0", got)
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}
	r.waitFor(t, "stopping state", isState(Stopping))
	r.waitFor(t, "stopped message", logContains("Process stopped"))
}

func TestStopForcesTreeKillOnce(t *testing.T) {
	killer := &countingKiller{next: proctree.NewKiller(nil)}
	s, r := newTestSupervisor(t, Options{Killer: killer})

	err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: `sh -c "trap '' TERM; sleep 30"`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Give the shell time to install the trap.
	time.Sleep(200 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := killer.calls.Load(); got != 1 {
		t.Errorf("KillTree called %d times, want 1", got)
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}

	ev := r.waitFor(t, "forced termination", logContains("forcing termination")).(LogEvent)
	var timeout *TerminationTimeout
	if !errors.As(ev.Err, &timeout) {
		t.Errorf("Err = %v, want TerminationTimeout", ev.Err)
	}
	if n := r.count(logContains("might still be running")); n != 0 {
		t.Errorf("unexpected termination failure warning")
	}
}

type noopKiller struct{ calls atomic.Int32 }

func (k *noopKiller) KillTree(int) bool {
	k.calls.Add(1)
	return false
}

func TestStopReportsSurvivingProcess(t *testing.T) {
	killer := &noopKiller{}
	s, r := newTestSupervisor(t, Options{Killer: killer, KillWait: 300 * time.Millisecond})

	err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: `sh -c "trap '' TERM; sleep 30"`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	pid := s.PID()
	t.Cleanup(func() { proctree.NewKiller(nil).KillTree(pid) })
	time.Sleep(200 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := killer.calls.Load(); got != 1 {
		t.Errorf("KillTree called %d times, want 1", got)
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}
	if !proctree.Alive(pid) {
		t.Errorf("process %d exited; the stop did not exercise a surviving process", pid)
	}

	ev := r.waitFor(t, "termination failure", logContains("might still be running")).(LogEvent)
	var failure *TerminationFailure
	if !errors.As(ev.Err, &failure) || failure.PID != pid {
		t.Errorf("Err = %v, want TerminationFailure{%d}", ev.Err, pid)
	}

	if err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: "sleep 30"}); err != nil {
		t.Fatalf("Run() after failed stop error = %v", err)
	}
}

func TestRunStartFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mode    os.FileMode
	}{
		{"not executable", "#!/bin/sh\n", 0o644},
		{"missing interpreter", "#!/definitely/missing/interpreter\n", 0o755},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := t.TempDir()
			if err := os.WriteFile(filepath.Join(bin, "tool"), []byte(tt.content), tt.mode); err != nil {
				t.Fatal(err)
			}
			s, r := newTestSupervisor(t, Options{Environ: func() []string {
				return []string{"PATH=" + bin}
			}})

			err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: "tool --serve"})
			var serr *StartError
			if !errors.As(err, &serr) {
				t.Fatalf("Run() error = %v, want StartError", err)
			}
			if serr.Path != filepath.Join(bin, "tool") {
				t.Errorf("Path = %q", serr.Path)
			}

			failed := r.waitFor(t, "failed state", isState(Failed)).(StateEvent)
			if !errors.As(failed.Err, &serr) {
				t.Errorf("failed event Err = %v", failed.Err)
			}
			r.waitFor(t, "idle state", isState(Idle))
			if s.State() != Idle || s.PID() != 0 {
				t.Errorf("State() = %s, PID() = %d; want idle with no pid", s.State(), s.PID())
			}
		})
	}
}

func TestStopWhileStartingCancelsLaunch(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	s, r := newTestSupervisor(t, Options{Environ: func() []string {
		<-release
		return os.Environ()
	}})

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(RunConfig{WorkDir: t.TempDir(), Command: "sleep 30"}) }()
	r.waitFor(t, "starting state", isState(Starting))

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	unblock()

	select {
	case err := <-runErr:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("Run() error = %v, want ErrCancelled", err)
		}
	case <-time.After(eventTimeout):
		t.Fatal("Run() did not return after cancel")
	}

	r.waitFor(t, "cancel message", logContains("Run cancelled"))
	if s.State() != Idle || s.PID() != 0 {
		t.Errorf("State() = %s, PID() = %d; want idle with no pid", s.State(), s.PID())
	}
	if n := r.count(isState(Running)); n != 0 {
		t.Errorf("saw %d running states, want none", n)
	}
}

func TestStopWhenIdleIsIdempotent(t *testing.T) {
	s, r := newTestSupervisor(t, Options{})

	for i := 0; i < 2; i++ {
		if err := s.Stop(); !errors.Is(err, ErrNothingToStop) {
			t.Fatalf("Stop() #%d error = %v, want ErrNothingToStop", i+1, err)
		}
	}

	nothing := logContains("No running process to stop")
	deadline := time.Now().Add(eventTimeout)
	for r.count(nothing) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := r.count(nothing); n != 2 {
		t.Errorf("got %d nothing-to-stop events, want 2", n)
	}
	if n := r.count(func(e Event) bool { _, ok := e.(StateEvent); return ok }); n != 0 {
		t.Errorf("got %d state events, want none", n)
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}
}

func TestRunResolutionFailure(t *testing.T) {
	s, r := newTestSupervisor(t, Options{})

	err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: "definitely-not-installed-devserver --port 3000"})
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("Run() error = %v, want ResolutionError", err)
	}
	if rerr.Program != "definitely-not-installed-devserver" {
		t.Errorf("Program = %q", rerr.Program)
	}

	failed := r.waitFor(t, "failed state", isState(Failed)).(StateEvent)
	if !errors.As(failed.Err, &rerr) {
		t.Errorf("failed event Err = %v", failed.Err)
	}
	r.waitFor(t, "idle state", isState(Idle))
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}
}

func TestRunResolutionHintsPrecedeIdle(t *testing.T) {
	root := t.TempDir()
	s, r := newTestSupervisor(t, Options{VersionRoot: root})

	err := s.Run(RunConfig{WorkDir: t.TempDir(), Version: "v99.0.0", Command: "definitely-not-installed-devserver"})
	if err == nil {
		t.Fatal("Run() error = nil, want ResolutionError")
	}
	r.waitFor(t, "idle state", isState(Idle))

	hint, idle := -1, -1
	for i, e := range r.snapshot() {
		if logContains("nvm install v99.0.0")(e) && hint < 0 {
			hint = i
		}
		if isState(Idle)(e) && idle < 0 {
			idle = i
		}
	}
	if hint < 0 || hint > idle {
		t.Errorf("hint at %d, idle at %d; got %s", hint, idle, describe(r.snapshot()))
	}
}

func TestRunRelativeCommandInWorkDir(t *testing.T) {
	s, r := newTestSupervisor(t, Options{})
	dir := t.TempDir()
	script := "#!/bin/sh\necho started from project\n"
	if err := os.WriteFile(filepath.Join(dir, "start.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := s.Run(RunConfig{WorkDir: dir, Command: "./start.sh"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	r.waitFor(t, "script output", logContains("started from project"))
	r.waitFor(t, "exit", isState(Idle))
}

func TestRunInvalidWorkDir(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{})

	err := s.Run(RunConfig{WorkDir: filepath.Join(t.TempDir(), "missing"), Command: "sleep 1"})
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Run() error = %v, want ConfigError", err)
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}
}

func TestRunRejectedWhileBusy(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{})
	dir := t.TempDir()

	if err := s.Run(RunConfig{WorkDir: dir, Command: "sleep 30"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := s.Run(RunConfig{WorkDir: dir, Command: "sleep 30"}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Run() error = %v, want ErrBusy", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Run(RunConfig{WorkDir: dir, Command: "sleep 30"}); err != nil {
		t.Errorf("Run() after Stop error = %v", err)
	}
}

func TestRunDetectsPort(t *testing.T) {
	s, r := newTestSupervisor(t, Options{})

	err := s.Run(RunConfig{Name: "web", WorkDir: t.TempDir(), Command: `sh -c 'echo "Server running on port 4321"; sleep 30'`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	ev := r.waitFor(t, "port event", func(e Event) bool {
		ev, ok := e.(StateEvent)
		return ok && ev.State == Running && ev.Port != ""
	}).(StateEvent)
	if ev.Port != "4321" || ev.Name != "web" {
		t.Errorf("port event = %+v", ev)
	}
	if s.Port() != "4321" {
		t.Errorf("Port() = %q", s.Port())
	}

	_ = s.Stop()
	if s.Port() != "" {
		t.Errorf("Port() = %q after stop, want empty", s.Port())
	}
	if err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: "sleep 30"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.Port() != "" {
		t.Errorf("Port() = %q after new run, want empty", s.Port())
	}
}

func TestPortClearedWhenProcessExits(t *testing.T) {
	s, r := newTestSupervisor(t, Options{})

	err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: `sh -c 'echo "Local: http://localhost:4321/"; sleep 0.2'`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	r.waitFor(t, "port event", func(e Event) bool {
		ev, ok := e.(StateEvent)
		return ok && ev.Port == "4321"
	})
	r.waitFor(t, "exit", isState(Idle))

	if s.Port() != "" {
		t.Errorf("Port() after exit = %q, want empty", s.Port())
	}
}

func TestInstallFailureContinuesRun(t *testing.T) {
	empty := t.TempDir()
	s, r := newTestSupervisor(t, Options{
		Environ: func() []string { return []string{"PATH=" + empty} },
	})

	err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: `/bin/sh -c 'echo ran'`, Install: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	skipped := r.waitFor(t, "install skipped", logContains("Install skipped")).(LogEvent)
	var rerr *ResolutionError
	if !errors.As(skipped.Err, &rerr) || rerr.Program != "npm" {
		t.Errorf("skip Err = %v, want ResolutionError for npm", skipped.Err)
	}
	r.waitFor(t, "run output", logContains("ran"))
	r.waitFor(t, "exit", isState(Idle))
}

func TestInstallRunsBeforeCommand(t *testing.T) {
	bin := t.TempDir()
	npm := filepath.Join(bin, "npm")
	if err := os.WriteFile(npm, []byte("#!/bin/sh\necho \"installing $1\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	s, r := newTestSupervisor(t, Options{
		Environ: func() []string { return []string{"PATH=" + bin} },
	})

	if err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: `/bin/sh -c 'echo serving'`, Install: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	r.waitFor(t, "run output", logContains("serving"))

	var order []string
	for _, e := range r.snapshot() {
		switch ev := e.(type) {
		case StateEvent:
			order = append(order, ev.State.String())
		case LogEvent:
			if strings.Contains(ev.Text(), "installing install") {
				order = append(order, "install-output")
			}
		}
	}
	got := strings.Join(order, ",")
	if !strings.HasPrefix(got, "starting,installing,install-output,starting,running") {
		t.Errorf("event order = %s", got)
	}
}

func TestRunUsesVersionSearchPath(t *testing.T) {
	root := t.TempDir()
	version := filepath.Join(root, "v18.17.0")
	if err := os.MkdirAll(version, 0o755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\necho \"PATH=$PATH\"\necho \"HOME=$NVM_HOME\"\n"
	if err := os.WriteFile(filepath.Join(version, "devserver"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	stale := filepath.Join(root, "v16.0.0")
	s, r := newTestSupervisor(t, Options{
		VersionRoot: root,
		Environ: func() []string {
			return []string{"PATH=" + stale + ":/usr/bin:/bin", "NVM_HOME=" + root}
		},
	})

	if err := s.Run(RunConfig{WorkDir: t.TempDir(), Version: "v18.17.0", Command: "devserver"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	r.waitFor(t, "exit", isState(Idle))

	want := "PATH=" + version + ":" + root + ":/usr/bin:/bin"
	r.waitFor(t, want, logContains(want))
	r.waitFor(t, "passthrough", logContains("HOME="+root))
}

func TestHandleShutdown(t *testing.T) {
	s, r := newTestSupervisor(t, Options{GracePeriod: 3 * time.Second})

	if err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: "sleep 30"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.HandleShutdown(ChoiceCancel) {
		t.Fatal("HandleShutdown(cancel) = true")
	}
	if !s.Live() {
		t.Fatal("process stopped by cancelled shutdown")
	}

	if !s.HandleShutdown(ChoiceStopAndExit) {
		t.Fatal("HandleShutdown(stop and exit) = false")
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}

	select {
	case <-r.done:
	case <-time.After(eventTimeout):
		t.Fatal("event stream not closed")
	}
	if err := s.Run(RunConfig{WorkDir: t.TempDir(), Command: "sleep 1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Run() after exit error = %v, want ErrClosed", err)
	}
}

func TestMailboxPreservesOrder(t *testing.T) {
	m := newMailbox()
	for i := 0; i < 100; i++ {
		m.push(StateEvent{Port: string(rune('a' + i%26))})
	}
	m.close()

	i := 0
	for e := range m.out {
		if got, want := e.(StateEvent).Port, string(rune('a'+i%26)); got != want {
			t.Fatalf("event %d = %q, want %q", i, got, want)
		}
		i++
	}
	if i != 100 {
		t.Errorf("delivered %d events, want 100", i)
	}
}
