package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/apprunner/internal/runtimeenv"
	"github.com/harshul/apprunner/internal/ui"
)

var versionsCmd = &cobra.Command{
	Use:   "versions [constraint]",
	Short: "List installed Node versions",
	Long: `List the Node versions installed under nvm_dir, newest first.

With a constraint such as ^18 or >=20, print the version a run would use.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cfg.NVMDir()
		installed, err := runtimeenv.Versions(root)
		if err != nil {
			return fmt.Errorf("read node versions in %s: %w", root, err)
		}
		if len(installed) == 0 {
			ui.PrintWarning("No Node versions found in " + root)
			return nil
		}

		if len(args) == 1 {
			v, err := runtimeenv.Match(installed, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(ui.Output, v)
			return nil
		}

		ui.PrintHeader("Node versions in " + root)
		for _, v := range installed {
			fmt.Fprintln(ui.Output, "  "+v)
		}
		return nil
	},
}
