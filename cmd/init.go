package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harshul/apprunner/internal/analyzer"
	"github.com/harshul/apprunner/internal/blueprint"
	"github.com/harshul/apprunner/internal/provisioner"
	"github.com/harshul/apprunner/internal/ui"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Detect the project and write a .apprunner.yaml file",
	Long: `The init command inspects a Node project to detect:
- The project name
- The Node version from .nvmrc, .node-version or package.json engines
- The package manager from lock files
- The dev server script (dev, start or serve)

It then writes a .apprunner.yaml file that 'apprunner run' reads.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing .apprunner.yaml file")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")

	info, err := analyzer.AnalyzeProject(dir)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	outputPath := filepath.Join(info.Root, blueprint.FileName)
	if _, err := os.Stat(outputPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s. Use --force to overwrite", outputPath)
	}

	bp := blueprint.FromProjectInfo(info)
	if err := blueprint.Write(outputPath, bp); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	ui.PrintHeader("Detected " + bp.Name)
	if info.Manager != "" {
		ui.PrintHighlight("Package manager", provisioner.ManagerName(info.Manager))
	}
	if bp.NodeVersion != "" {
		ui.PrintHighlight("Node", fmt.Sprintf("%s (from %s)", bp.NodeVersion, info.VersionSource))
	}
	if bp.RunCommand != "" {
		ui.PrintHighlight("Run", bp.RunCommand)
	} else {
		ui.PrintWarning("No package.json found; set 'run' in the file by hand")
	}
	ui.PrintDivider()
	ui.PrintSuccess(fmt.Sprintf("Configuration written to %s", outputPath))
	ui.PrintInfo("Run 'apprunner run' to start your application")
	return nil
}
