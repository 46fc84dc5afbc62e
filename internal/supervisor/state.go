package supervisor

// State is the lifecycle state of a Supervisor.
type State string

const (
	// Idle means no process is live and a run may be requested.
	Idle State = "idle"
	// Starting covers environment and executable resolution and the bounded
	// wait for the process to launch.
	Starting State = "starting"
	// Installing means the dependency install step is running.
	Installing State = "installing"
	// Running means the run command is live.
	Running State = "running"
	// Stopping means the two-phase termination is in progress.
	Stopping State = "stopping"
	// Failed is reported when a run attempt is aborted. The Supervisor moves
	// on to Idle immediately after.
	Failed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Live reports whether the state holds, or is about to hold, a process.
func (s State) Live() bool {
	switch s {
	case Starting, Installing, Running, Stopping:
		return true
	}
	return false
}

// ShutdownChoice is the answer to "a process is still running, quit anyway?".
type ShutdownChoice int

const (
	ChoiceStopAndExit ShutdownChoice = iota
	ChoiceExitWithoutStopping
	ChoiceCancel
)

func (c ShutdownChoice) String() string {
	switch c {
	case ChoiceStopAndExit:
		return "stop and exit"
	case ChoiceExitWithoutStopping:
		return "exit without stopping"
	case ChoiceCancel:
		return "cancel"
	}
	return "unknown"
}
