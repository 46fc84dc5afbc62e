//go:build windows

package proctree

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// SysProcAttr starts the child in a new process group.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Terminate asks the tree rooted at pid to close. Without /F taskkill sends
// a close request that console programs may ignore.
func Terminate(pid int) error {
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func killRoot(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func scriptedKill(pid int) error {
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
