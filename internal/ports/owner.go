package ports

import (
	"fmt"
	"net"
	"sort"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Listener is a process accepting TCP connections on a port.
type Listener struct {
	PID  int
	Name string
	Addr string
}

func (l Listener) String() string {
	if l.Name == "" {
		return fmt.Sprintf("pid %d on %s", l.PID, l.Addr)
	}
	return fmt.Sprintf("%s (pid %d) on %s", l.Name, l.PID, l.Addr)
}

// ListenersOn returns the processes listening on port, one entry per pid.
func ListenersOn(port int) ([]Listener, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	seen := make(map[int32]bool)
	var out []Listener
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid == 0 || seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true

		l := Listener{PID: int(c.Pid), Addr: fmt.Sprintf("%s:%d", c.Laddr.IP, c.Laddr.Port)}
		if p, err := process.NewProcess(c.Pid); err == nil {
			l.Name, _ = p.Name()
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
