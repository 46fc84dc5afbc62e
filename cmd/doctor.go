package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harshul/apprunner/internal/analyzer"
	"github.com/harshul/apprunner/internal/doctor"
	"github.com/harshul/apprunner/internal/provisioner"
	"github.com/harshul/apprunner/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [dir]",
	Short: "Check that a project is ready to run",
	Long: `Check the Node version a project asks for, its package manager,
installed dependencies and the variables listed in .env.example.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	info, err := analyzer.AnalyzeProject(dir)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	d := doctor.Diagnose(info, cfg.NVMDir(), os.Environ())

	ui.PrintHeader("Checking " + info.Name)
	if d.Runtime.Installed {
		ui.PrintSuccess(fmt.Sprintf("Node %s (%s)", d.Runtime.Version, d.Runtime.Path))
	}
	if d.Dependencies.ManagerInstalled {
		ui.PrintSuccess(provisioner.ManagerName(d.Dependencies.Manager) + " is installed")
	}
	if d.Dependencies.Installed {
		ui.PrintSuccess("Dependencies are installed")
	}
	if d.Env.ExampleFile != "" && len(d.Env.Missing) == 0 {
		ui.PrintSuccess(fmt.Sprintf("All %d variables from %s are set", len(d.Env.Expected), d.Env.ExampleFile))
	}
	for _, issue := range d.Issues {
		ui.PrintError(issue)
	}

	ui.PrintDivider()
	if !d.Healthy {
		return fmt.Errorf("%d issue(s) found", len(d.Issues))
	}
	ui.PrintSuccess("Ready to run")
	return nil
}
