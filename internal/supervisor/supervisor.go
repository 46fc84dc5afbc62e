// Package supervisor runs one development server at a time: it composes the
// runtime environment, launches the command, streams its output as styled
// log events, and stops it with a graceful-then-forced termination.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"
	"mvdan.cc/sh/v3/shell"

	"github.com/harshul/apprunner/internal/console"
	"github.com/harshul/apprunner/internal/ports"
	"github.com/harshul/apprunner/internal/proctree"
	"github.com/harshul/apprunner/internal/provisioner"
	"github.com/harshul/apprunner/internal/runtimeenv"
)

const (
	DefaultGracePeriod  = 5 * time.Second
	DefaultKillWait     = 1 * time.Second
	DefaultStartTimeout = 1 * time.Second
	DefaultWaitDelay    = 2 * time.Second
)

// RunConfig describes one run request. It is copied when the run starts.
type RunConfig struct {
	// Name is shown in state events only.
	Name    string
	WorkDir string
	// Version selects a directory under Options.VersionRoot. Empty runs with
	// the ambient search path.
	Version string
	Command string
	// Install runs the project's package manager install first.
	Install bool
}

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
	VersionRoot  string
	GracePeriod  time.Duration
	KillWait     time.Duration
	StartTimeout time.Duration
	// WaitDelay bounds how long output pipes are drained after the child
	// exits, for grandchildren that keep them open.
	WaitDelay time.Duration
	Killer    proctree.TreeKiller
	Logger    *log.Logger
	// Environ returns the ambient environment. Defaults to os.Environ.
	Environ func() []string
}

// Supervisor owns at most one child process.
type Supervisor struct {
	opts   Options
	logger *log.Logger
	events *mailbox

	detector ports.Detector

	mu        sync.Mutex
	processor *console.Processor
	state     State
	idle      chan struct{}
	cfg       RunConfig
	argv      []string
	env       *runtimeenv.Environment
	sess      *session
	stopping  bool
	cancelled bool
	closed    bool
	closeOnce sync.Once
}

// New returns an idle Supervisor.
func New(opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.KillWait <= 0 {
		opts.KillWait = DefaultKillWait
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = DefaultWaitDelay
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Killer == nil {
		opts.Killer = proctree.NewKiller(opts.Logger)
	}

	idle := make(chan struct{})
	close(idle)
	return &Supervisor{
		opts:   opts,
		logger: opts.Logger,
		events: newMailbox(),
		state:  Idle,
		idle:   idle,
	}
}

// Events returns the event stream. It is closed by Close or StopAndExit
// after all pending events are delivered, and must be drained.
func (s *Supervisor) Events() <-chan Event {
	return s.events.out
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Live reports whether a process is running or being started or stopped.
func (s *Supervisor) Live() bool {
	return s.State().Live()
}

// PID returns the pid of the live process, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return 0
	}
	return s.sess.pid
}

// Port returns the last port seen in the output of the current run.
func (s *Supervisor) Port() string {
	return s.detector.Current()
}

// Run starts cfg. It returns once the process is running, or with the reason
// the attempt failed; failures are also reported as events. A run is only
// accepted while Idle.
func (s *Supervisor) Run(cfg RunConfig) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.cfg = cfg
	s.cancelled = false
	s.stopping = false
	// Style state never carries over from a previous run.
	s.processor = console.NewProcessor()
	s.detector.Reset()
	s.setStateLocked(StateEvent{State: Starting, Name: cfg.Name})
	s.mu.Unlock()

	s.logger.Info("run requested", "name", cfg.Name, "dir", cfg.WorkDir, "node", cfg.Version, "command", cfg.Command)

	if err := s.prepare(cfg); err != nil {
		s.fail(err)
		return err
	}
	if cfg.Install {
		return s.startStage(stageInstall)
	}
	return s.startStage(stageRun)
}

// prepare validates cfg and composes the environment and argv for the run.
func (s *Supervisor) prepare(cfg RunConfig) error {
	info, err := os.Stat(cfg.WorkDir)
	if err != nil {
		return &ConfigError{Field: "working directory", Err: err}
	}
	if !info.IsDir() {
		return &ConfigError{Field: "working directory", Err: fmt.Errorf("%s is not a directory", cfg.WorkDir)}
	}

	ambient := s.opts.Environ()
	env := runtimeenv.FromEnviron(ambient)
	if cfg.Version != "" {
		env, err = runtimeenv.Resolve(ambient, s.opts.VersionRoot, cfg.Version)
		if err != nil {
			return &ConfigError{Field: "node version", Err: err}
		}
	}

	argv, err := shell.Fields(cfg.Command, func(name string) string {
		v, _ := env.Get(name)
		return v
	})
	if err != nil {
		return &ConfigError{Field: "command", Err: err}
	}
	if len(argv) == 0 {
		return &ConfigError{Field: "command", Err: errors.New("empty command")}
	}

	s.mu.Lock()
	s.env = env
	s.argv = argv
	s.mu.Unlock()
	return nil
}

// startStage launches the install step or the run command. A failing install
// step is reported and the run command is started anyway.
func (s *Supervisor) startStage(st stage) error {
	s.mu.Lock()
	cfg, env, argv, proc := s.cfg, s.env, s.argv, s.processor
	s.mu.Unlock()

	if st == stageInstall {
		pm := provisioner.Detect(cfg.WorkDir)
		argv = pm.InstallCommand
		s.logSystem(log.InfoLevel, nil, fmt.Sprintf("Installing dependencies with %s...", provisioner.ManagerName(pm.Manager)))
	}

	path, err := runtimeenv.LookPath(argv[0], cfg.WorkDir, env)
	if err != nil {
		rerr := &ResolutionError{
			Program: argv[0],
			Version: cfg.Version,
			Root:    s.opts.VersionRoot,
			Command: strings.Join(argv, " "),
			Err:     err,
		}
		if st == stageInstall {
			s.logSystem(log.WarnLevel, rerr, "Install skipped: "+rerr.Error())
			return s.startStage(stageRun)
		}
		s.fail(rerr)
		return rerr
	}

	if st == stageRun {
		s.logSystem(log.InfoLevel, nil, fmt.Sprintf("Running command: %s in %s...", strings.Join(argv, " "), cfg.WorkDir))
		if cfg.Version != "" {
			s.logSystem(log.InfoLevel, nil, "Using Node: "+cfg.Version)
		}
	}

	name, args := runtimeenv.Command(path, argv[1:])
	cmd := exec.Command(name, args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = env.Environ()
	cmd.SysProcAttr = proctree.SysProcAttr()
	cmd.WaitDelay = s.opts.WaitDelay
	sess := newSession(cmd, st)
	sess.processor = proc

	s.mu.Lock()
	if s.cancelled {
		s.logSystem(log.InfoLevel, nil, "Run cancelled")
		s.setStateLocked(StateEvent{State: Idle})
		s.mu.Unlock()
		return ErrCancelled
	}
	s.mu.Unlock()

	if err := s.startWithTimeout(sess); err != nil {
		serr := &StartError{Path: path, Err: err}
		if st == stageInstall {
			s.logSystem(log.WarnLevel, serr, "Install skipped: "+serr.Error())
			return s.startStage(stageRun)
		}
		s.fail(serr)
		return serr
	}

	sess.pid = cmd.Process.Pid
	sess.started = time.Now()
	s.logger.Info("process started", "stage", st, "pid", sess.pid, "path", path, "dir", cfg.WorkDir)

	s.mu.Lock()
	s.sess = sess
	cancelled := s.cancelled
	switch {
	case cancelled:
		s.stopping = true
		s.setStateLocked(StateEvent{State: Stopping, Name: cfg.Name})
	case st == stageInstall:
		s.setStateLocked(StateEvent{State: Installing, Name: cfg.Name})
	default:
		s.setStateLocked(StateEvent{State: Running, Name: cfg.Name})
	}
	s.mu.Unlock()

	if st == stageRun && !cancelled {
		s.logSystem(log.InfoLevel, nil, fmt.Sprintf("Started %s (pid %d)", strings.Join(argv, " "), sess.pid))
	}
	go s.pump(sess)
	go s.wait(sess)

	if cancelled {
		s.terminate(sess)
		return ErrCancelled
	}
	return nil
}

// startWithTimeout starts the process, giving up after StartTimeout. A
// process that starts after the deadline is killed.
func (s *Supervisor) startWithTimeout(sess *session) error {
	errc := make(chan error, 1)
	go func() { errc <- sess.cmd.Start() }()

	timer := time.NewTimer(s.opts.StartTimeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		return err
	case <-timer.C:
		sess.closeOutput()
		go func() {
			if err := <-errc; err == nil {
				_ = sess.cmd.Process.Kill()
				_ = sess.cmd.Wait()
			}
		}()
		return ErrStartTimeout
	}
}

// pump decodes and styles output until the session's output is closed.
func (s *Supervisor) pump(sess *session) {
	defer close(sess.pumped)

	decoders := map[Source]*console.Decoder{
		SourceStdout: {},
		SourceStderr: {},
	}
	for c := range sess.chunks {
		s.emitOutput(sess, c.source, decoders[c.source].Decode(c.data))
	}
	for _, src := range []Source{SourceStdout, SourceStderr} {
		s.emitOutput(sess, src, decoders[src].Flush())
	}
}

func (s *Supervisor) emitOutput(sess *session, src Source, text string) {
	if text == "" {
		return
	}
	if segs := sess.processor.Feed(text); len(segs) > 0 {
		s.events.push(LogEvent{Source: src, Level: log.InfoLevel, Segments: segs, Time: time.Now()})
	}
	if sess.stage != stageRun {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		return
	}
	if port, changed := s.detector.Scan(text); changed && s.state == Running {
		s.events.push(StateEvent{State: Running, Name: s.cfg.Name, Port: port})
		s.logger.Debug("port detected", "port", port)
	}
}

// wait reaps the process once all of its output has been delivered.
func (s *Supervisor) wait(sess *session) {
	err := sess.cmd.Wait()
	sess.closeOutput()
	<-sess.pumped

	sess.exitCode = -1
	if sess.cmd.ProcessState != nil {
		sess.exitCode = sess.cmd.ProcessState.ExitCode()
	}
	sess.waitErr = err
	close(sess.done)

	s.logger.Info("process exited", "stage", sess.stage, "pid", sess.pid, "code", sess.exitCode, "uptime", time.Since(sess.started).Round(time.Millisecond))
	s.sessionExited(sess)
}

func (s *Supervisor) sessionExited(sess *session) {
	s.mu.Lock()
	if s.sess != sess || s.stopping {
		// Stop owns the transition.
		s.mu.Unlock()
		return
	}
	s.sess = nil
	code := sess.exitCode

	if sess.stage == stageInstall {
		s.setStateLocked(StateEvent{State: Starting, Name: s.cfg.Name})
		s.mu.Unlock()
		if code != 0 {
			s.logSystem(log.WarnLevel, &RuntimeExit{Code: code}, fmt.Sprintf("Install finished with exit code %d", code))
		} else {
			s.logSystem(log.InfoLevel, nil, "Install finished")
		}
		go func() { _ = s.startStage(stageRun) }()
		return
	}

	ev := StateEvent{State: Idle, Name: s.cfg.Name, ExitCode: &code}
	level := log.InfoLevel
	if code != 0 {
		ev.Err = &RuntimeExit{Code: code}
		level = log.WarnLevel
	}
	s.logSystem(level, ev.Err, fmt.Sprintf("Process finished with exit code %d", code))
	s.setStateLocked(ev)
	s.mu.Unlock()
}

// Stop terminates the live process and blocks until the Supervisor is Idle
// again, at most GracePeriod+KillWait. Stopping during Starting cancels the
// pending launch instead and returns immediately.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state == Starting && s.sess == nil {
		s.cancelled = true
		s.mu.Unlock()
		s.logSystem(log.InfoLevel, nil, "Cancelling start...")
		return nil
	}
	sess := s.sess
	if sess == nil || s.stopping {
		s.mu.Unlock()
		s.logSystem(log.InfoLevel, nil, "No running process to stop")
		return ErrNothingToStop
	}
	s.stopping = true
	s.setStateLocked(StateEvent{State: Stopping, Name: s.cfg.Name})
	s.mu.Unlock()

	s.terminate(sess)
	return nil
}

// terminate runs the stop protocol for sess and finishes in Idle.
func (s *Supervisor) terminate(sess *session) {
	s.logSystem(log.InfoLevel, nil, "Stopping process...")
	if err := proctree.Terminate(sess.pid); err != nil {
		s.logger.Debug("graceful termination", "pid", sess.pid, "err", err)
	}

	grace := time.NewTimer(s.opts.GracePeriod)
	defer grace.Stop()

	select {
	case <-sess.done:
	case <-grace.C:
		timeout := &TerminationTimeout{PID: sess.pid, After: s.opts.GracePeriod}
		s.logSystem(log.WarnLevel, timeout, "Process not responding - forcing termination...")
		if !s.opts.Killer.KillTree(sess.pid) {
			s.logger.Warn("tree kill reported failure", "pid", sess.pid)
		}

		wait := time.NewTimer(s.opts.KillWait)
		defer wait.Stop()
		select {
		case <-sess.done:
		case <-wait.C:
			failure := &TerminationFailure{PID: sess.pid}
			s.logSystem(log.WarnLevel, failure, "Warning: Process might still be running")
		}
	}

	s.mu.Lock()
	if s.sess == sess {
		s.sess = nil
	}
	s.stopping = false
	ev := StateEvent{State: Idle, Name: s.cfg.Name}
	if sess.exited() {
		code := sess.exitCode
		ev.ExitCode = &code
	}
	s.logSystem(log.InfoLevel, nil, "Process stopped")
	s.setStateLocked(ev)
	s.mu.Unlock()
}

// StopAndExit stops any live process, waits for Idle, then closes the
// Supervisor. No run can start once it has been called.
func (s *Supervisor) StopAndExit() {
	s.mu.Lock()
	s.closed = true
	live := s.state.Live()
	s.mu.Unlock()

	if live {
		_ = s.Stop()
		s.waitIdle(s.opts.StartTimeout + s.opts.GracePeriod + s.opts.KillWait)
	}
	s.Close()
}

// HandleShutdown applies the answer to a quit prompt and reports whether the
// host should exit.
func (s *Supervisor) HandleShutdown(choice ShutdownChoice) bool {
	s.logger.Info("shutdown requested", "choice", choice, "live", s.Live())
	switch choice {
	case ChoiceStopAndExit:
		s.StopAndExit()
		return true
	case ChoiceExitWithoutStopping:
		s.Close()
		return true
	default:
		return false
	}
}

// Close stops accepting runs and closes the event stream without touching a
// live process.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(s.events.close)
}

func (s *Supervisor) waitIdle(timeout time.Duration) bool {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// logHints explains the usual causes of an unresolved program.
func (s *Supervisor) logHints(rerr *ResolutionError, env *runtimeenv.Environment) {
	path, _ := env.Get(runtimeenv.PathVar)
	s.logSystem(log.InfoLevel, nil, "Current PATH: "+path)
	if rerr.Version == "" {
		return
	}
	s.logSystem(log.InfoLevel, nil, "Please ensure:")
	s.logSystem(log.InfoLevel, nil, fmt.Sprintf("1. Node version %s exists in %s", rerr.Version, rerr.Root))
	s.logSystem(log.InfoLevel, nil, fmt.Sprintf("2. %s is installed (try 'nvm install %s')", rerr.Program, rerr.Version))
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	name := s.cfg.Name
	s.setStateLocked(StateEvent{State: Failed, Name: name, Err: err})
	// Messages precede Idle so readers that stop at Idle still see them.
	s.logSystem(log.ErrorLevel, err, "Error: "+err.Error())
	var rerr *ResolutionError
	if errors.As(err, &rerr) {
		s.logHints(rerr, s.env)
	}
	s.setStateLocked(StateEvent{State: Idle, Name: name})
	s.mu.Unlock()
}

// setStateLocked records ev.State and publishes ev. Callers hold s.mu.
func (s *Supervisor) setStateLocked(ev StateEvent) {
	prev := s.state
	s.state = ev.State
	switch {
	case ev.State == Idle && prev != Idle:
		// The port belongs to the process that just ended.
		s.detector.Reset()
		close(s.idle)
	case prev == Idle && ev.State != Idle:
		s.idle = make(chan struct{})
	}
	if ev.State == Running && ev.Port == "" {
		ev.Port = s.detector.Current()
	}
	s.events.push(ev)
	s.logger.Debug("state", "from", prev, "to", ev.State)
}

var levelColors = map[log.Level]lipgloss.Color{
	log.WarnLevel:  console.Yellow,
	log.ErrorLevel: console.Red,
}

// logSystem publishes a message from the Supervisor itself.
func (s *Supervisor) logSystem(level log.Level, err error, msg string) {
	segs := console.Plain(msg + "\n")
	if c, ok := levelColors[level]; ok {
		segs = console.Colored(msg+"\n", c)
	}
	s.events.push(LogEvent{Source: SourceSystem, Level: level, Segments: segs, Err: err, Time: time.Now()})

	if err != nil {
		s.logger.Log(level, msg, "err", err)
	} else {
		s.logger.Log(level, msg)
	}
}
