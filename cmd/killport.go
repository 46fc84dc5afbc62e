package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/harshul/apprunner/internal/ports"
	"github.com/harshul/apprunner/internal/proctree"
	"github.com/harshul/apprunner/internal/ui"
)

var killPortCmd = &cobra.Command{
	Use:   "kill-port <port>",
	Short: "Kill the processes listening on a port",
	Long: `Find the processes listening on a TCP port and kill each one together
with its child processes. Useful when a dev server outlived its console.`,
	Args: cobra.ExactArgs(1),
	RunE: runKillPort,
}

func init() {
	killPortCmd.Flags().Bool("dry-run", false, "Only list the processes")
}

func runKillPort(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", args[0])
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	listeners, err := ports.ListenersOn(port)
	if err != nil {
		return err
	}
	if len(listeners) == 0 {
		ui.PrintInfo(fmt.Sprintf("No process is listening on port %d", port))
		return nil
	}

	logger, closeLog, err := newLogger(cmd, false)
	if err != nil {
		logger, closeLog = log.New(io.Discard), func() {}
	}
	defer closeLog()
	killer := proctree.NewKiller(logger)

	failed := 0
	for _, l := range listeners {
		if dryRun {
			ui.PrintInfo(l.String())
			continue
		}
		if killer.KillTree(l.PID) || !proctree.Alive(l.PID) {
			ui.PrintSuccess("Killed " + l.String())
		} else {
			ui.PrintError("Could not kill " + l.String())
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d process(es) still listening on port %d", failed, port)
	}
	if !dryRun && ports.IsPortAvailable(port) {
		ui.PrintInfo(fmt.Sprintf("Port %d is free", port))
	}
	return nil
}
