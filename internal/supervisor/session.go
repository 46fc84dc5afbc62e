package supervisor

import (
	"os/exec"
	"sync"
	"time"

	"github.com/harshul/apprunner/internal/console"
)

type stage int

const (
	stageInstall stage = iota
	stageRun
)

func (s stage) String() string {
	if s == stageInstall {
		return "install"
	}
	return "run"
}

type chunk struct {
	source Source
	data   []byte
}

// session is one launched child process. Output written by exec's copy
// goroutines is queued on chunks and decoded by a single pump goroutine, so
// the style state sees both streams in arrival order.
type session struct {
	cmd     *exec.Cmd
	stage   stage
	pid     int
	started time.Time

	// Owned by the pump goroutine.
	processor *console.Processor

	mu       sync.Mutex
	outClose bool
	chunks   chan chunk

	pumped chan struct{}
	done   chan struct{}

	// Set before done is closed.
	exitCode int
	waitErr  error
}

func newSession(cmd *exec.Cmd, st stage) *session {
	sess := &session{
		cmd:    cmd,
		stage:  st,
		chunks: make(chan chunk, 64),
		pumped: make(chan struct{}),
		done:   make(chan struct{}),
	}
	cmd.Stdout = &streamWriter{source: SourceStdout, sess: sess}
	cmd.Stderr = &streamWriter{source: SourceStderr, sess: sess}
	return sess
}

// closeOutput stops accepting output. Later writes are discarded.
func (s *session) closeOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outClose {
		return
	}
	s.outClose = true
	close(s.chunks)
}

func (s *session) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type streamWriter struct {
	source Source
	sess   *session
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	if w.sess.outClose {
		return len(p), nil
	}
	w.sess.chunks <- chunk{source: w.source, data: append([]byte(nil), p...)}
	return len(p), nil
}
