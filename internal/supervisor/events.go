package supervisor

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harshul/apprunner/internal/console"
)

// Source identifies where a log event came from.
type Source string

const (
	SourceStdout Source = "stdout"
	SourceStderr Source = "stderr"
	SourceSystem Source = "system"
)

// Event is a LogEvent or a StateEvent.
type Event interface {
	event()
}

// LogEvent carries styled output from the child, or a message from the
// Supervisor itself.
type LogEvent struct {
	Source   Source
	Level    log.Level
	Segments []console.Segment
	Err      error
	Time     time.Time
}

// Text returns the event text without styling.
func (e LogEvent) Text() string {
	var b strings.Builder
	for _, seg := range e.Segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// StateEvent reports a state change, or a new port while Running.
type StateEvent struct {
	State    State
	Name     string
	Port     string
	ExitCode *int
	Err      error
}

func (LogEvent) event()   {}
func (StateEvent) event() {}

// mailbox is an unbounded queue in front of the events channel, so senders
// never wait on the consumer. Order of push is order of delivery.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	out    chan Event
}

func newMailbox() *mailbox {
	m := &mailbox{out: make(chan Event)}
	m.cond = sync.NewCond(&m.mu)
	go m.forward()
	return m
}

func (m *mailbox) push(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, e)
	m.cond.Signal()
}

// forward delivers queued events and closes out once the mailbox is closed
// and drained.
func (m *mailbox) forward() {
	defer close(m.out)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		e := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.out <- e
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}
