// Package proctree terminates a process together with everything it spawned.
//
// Dev servers are usually started through wrappers (cmd.exe, sh, npm) that
// fork the real server; killing only the direct child leaves the server
// running and holding its port.
package proctree

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v3/process"
)

// TreeKiller forcibly terminates a process and all of its descendants.
type TreeKiller interface {
	KillTree(pid int) bool
}

// Killer kills process trees by walking the process table, and falls back to
// a platform script when the table cannot be read.
type Killer struct {
	Logger *log.Logger
}

// NewKiller returns a Killer logging to logger. A nil logger discards.
func NewKiller(logger *log.Logger) *Killer {
	return &Killer{Logger: logger}
}

func (k *Killer) logger() *log.Logger {
	if k.Logger == nil {
		return log.New(io.Discard)
	}
	return k.Logger
}

// KillTree kills pid's descendants deepest first, then pid itself. It reports
// whether a kill was carried out; it does not wait for the processes to exit.
func (k *Killer) KillTree(pid int) bool {
	logger := k.logger()

	procs, err := Descendants(pid)
	if err == nil {
		logger.Info("killing process tree", "method", "enumerate", "pid", pid, "descendants", len(procs))
		for i := len(procs) - 1; i >= 0; i-- {
			if err := procs[i].Kill(); err != nil {
				logger.Debug("kill descendant", "pid", procs[i].Pid, "err", err)
			}
		}
		if err := killRoot(pid); err != nil {
			logger.Debug("kill root", "pid", pid, "err", err)
		}
		return true
	}

	logger.Warn("process enumeration unavailable, using scripted fallback", "pid", pid, "err", err)
	if err := scriptedKill(pid); err != nil {
		logger.Error("scripted tree kill failed", "method", "script", "pid", pid, "err", err)
		return false
	}
	logger.Info("killed process tree", "method", "script", "pid", pid)
	return true
}

// Descendants returns every process below pid in breadth-first order, so
// parents always come before their children.
func Descendants(pid int) ([]*process.Process, error) {
	all, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	children := make(map[int32][]*process.Process)
	for _, p := range all {
		ppid, err := p.Ppid()
		if err != nil {
			// Processes can exit while we walk the table.
			continue
		}
		children[ppid] = append(children[ppid], p)
	}

	var out []*process.Process
	queue := []int32{int32(pid)}
	seen := map[int32]bool{int32(pid): true}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range children[parent] {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			out = append(out, child)
			queue = append(queue, child.Pid)
		}
	}
	return out, nil
}

// Alive reports whether pid still exists.
func Alive(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}
