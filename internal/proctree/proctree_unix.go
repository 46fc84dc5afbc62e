//go:build !windows

package proctree

import (
	"errors"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// SysProcAttr puts the child in its own process group so the whole group can
// be signalled at once.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// Terminate asks pid's process group to exit with SIGTERM.
func Terminate(pid int) error {
	return signal(pid, unix.SIGTERM)
}

// killRoot kills the group as well, which also catches descendants that were
// re-parented away from the tree.
func killRoot(pid int) error {
	return signal(pid, unix.SIGKILL)
}

func signal(pid int, sig unix.Signal) error {
	if err := unix.Kill(-pid, sig); err == nil || !errors.Is(err, unix.ESRCH) {
		return err
	}
	return unix.Kill(pid, sig)
}

func scriptedKill(pid int) error {
	return exec.Command("kill", "-9", "--", "-"+strconv.Itoa(pid)).Run()
}
