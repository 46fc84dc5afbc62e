package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/harshul/apprunner/internal/analyzer"
	"github.com/harshul/apprunner/internal/blueprint"
	"github.com/harshul/apprunner/internal/config"
	"github.com/harshul/apprunner/internal/proctree"
	"github.com/harshul/apprunner/internal/runtimeenv"
	"github.com/harshul/apprunner/internal/supervisor"
	"github.com/harshul/apprunner/internal/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Start a project's dev server",
	Long: `The run command starts a dev server and supervises it.

The project is taken from --service, from the directory argument, from
default_project_dir in the config file, or from the current directory.
Settings come from the project's .apprunner.yaml when present, otherwise
they are detected from package.json, .nvmrc and lock files. Flags override
both.

In the console:
  r  run again      s  stop           x  run a custom command
  o  open browser   c  clear output   q  quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("service", "s", "", "Run a service defined in the config file")
	runCmd.Flags().StringP("node", "n", "", "Node version or range to run with (e.g. 18.17.0, ^20)")
	runCmd.Flags().StringP("command", "c", "", "Command to run instead of the detected one")
	runCmd.Flags().Bool("install", false, "Install dependencies before running")
	runCmd.Flags().BoolP("pick", "p", false, "Choose the project, Node version and command interactively")
	runCmd.Flags().Bool("no-tui", false, "Disable the console (use plain scrolling output)")
}

func runRun(cmd *cobra.Command, args []string) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	pick, _ := cmd.Flags().GetBool("pick")
	useConsole := interactive && !noTUI
	if pick && !interactive {
		return errors.New("--pick needs an interactive terminal")
	}

	runCfg, err := resolveRunConfig(cmd, args, pick)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cmd, useConsole)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Debug("config", "file", cfg.ConfigFile(), "nvm_dir", cfg.NVMDir())

	sup := supervisor.New(supervisor.Options{
		VersionRoot:  cfg.NVMDir(),
		GracePeriod:  cfg.GracePeriod(),
		KillWait:     cfg.KillWait(),
		StartTimeout: cfg.StartTimeout(),
		Killer:       proctree.NewKiller(logger),
		Logger:       logger,
	})

	if useConsole {
		return ui.RunConsole(sup, runCfg)
	}

	ui.PrintInfo(fmt.Sprintf("Running %s in %s", runCfg.Name, runCfg.WorkDir))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	code, err := ui.RunPlain(ctx, sup, runCfg, os.Stdout)
	if err != nil {
		return err
	}
	if code != 0 {
		stop()
		closeLog()
		os.Exit(code)
	}
	return nil
}

// resolveRunConfig merges the service or project settings with the flags.
func resolveRunConfig(cmd *cobra.Command, args []string, pick bool) (supervisor.RunConfig, error) {
	var rc supervisor.RunConfig
	var nodeVersion string

	serviceName, _ := cmd.Flags().GetString("service")
	if pick && serviceName == "" && len(args) == 0 {
		choice, err := pickProject()
		if err != nil {
			return rc, err
		}
		if svc, err := cfg.Service(choice); err == nil {
			serviceName = svc.Name
		} else {
			args = []string{choice}
		}
	}

	if serviceName != "" {
		svc, err := cfg.Service(serviceName)
		if err != nil {
			return rc, err
		}
		rc = supervisor.RunConfig{
			Name:    svc.Name,
			WorkDir: svc.Dir,
			Command: svc.RunCommand,
			Install: svc.InstallRequested(),
		}
		nodeVersion = svc.NodeVersion
	} else {
		dir := cfg.DefaultProjectDir()
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			dir = "."
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return rc, err
		}
		rc, nodeVersion, err = projectRunConfig(abs)
		if err != nil {
			return rc, err
		}
	}

	if v, _ := cmd.Flags().GetString("node"); v != "" {
		nodeVersion = v
	}
	if c, _ := cmd.Flags().GetString("command"); c != "" {
		rc.Command = c
	}
	if cmd.Flags().Changed("install") {
		rc.Install, _ = cmd.Flags().GetBool("install")
	}

	installed, _ := runtimeenv.Versions(cfg.NVMDir())
	if pick && len(installed) > 0 {
		v, err := pickVersion(installed, nodeVersion)
		if err != nil {
			return rc, err
		}
		nodeVersion = v
	}
	rc.Version = resolveVersion(installed, nodeVersion)

	if rc.Command == "" || pick {
		if !pick && !term.IsTerminal(int(os.Stdin.Fd())) {
			return rc, fmt.Errorf("no run command for %s: pass --command", rc.Name)
		}
		c, err := pickCommand(rc.Command)
		if err != nil {
			return rc, err
		}
		rc.Command = c
	}
	return rc, nil
}

// projectRunConfig reads dir's blueprint, falling back to detection.
func projectRunConfig(dir string) (supervisor.RunConfig, string, error) {
	bp, err := blueprint.Read(filepath.Join(dir, blueprint.FileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return supervisor.RunConfig{}, "", fmt.Errorf("read %s: %w", blueprint.FileName, err)
		}
		info, err := analyzer.AnalyzeProject(dir)
		if err != nil {
			return supervisor.RunConfig{}, "", fmt.Errorf("analyze %s: %w", dir, err)
		}
		bp = blueprint.FromProjectInfo(info)
	}
	return supervisor.RunConfig{
		Name:    bp.Name,
		WorkDir: dir,
		Command: bp.RunCommand,
		Install: bp.Install,
	}, bp.NodeVersion, nil
}

// resolveVersion maps a requested version or range to an installed version
// directory. Requests that match nothing are passed through so the run
// reports the missing version.
func resolveVersion(installed []string, requested string) string {
	if requested == "" {
		return ""
	}
	if v, err := runtimeenv.Match(installed, requested); err == nil {
		return v
	}
	return config.Service{NodeVersion: requested}.Version()
}

func pickProject() (string, error) {
	var options []ui.SelectOption
	services, err := cfg.Services()
	if err != nil {
		return "", err
	}
	for _, svc := range services {
		options = append(options, ui.SelectOption{Label: svc.Name, Value: svc.Name, Description: svc.Dir})
	}
	projects, err := cfg.Projects()
	if err != nil {
		return "", err
	}
	for _, dir := range projects {
		options = append(options, ui.SelectOption{Label: filepath.Base(dir), Value: dir, Description: dir})
	}
	return ui.RunSelectPrompt("Select a project", options, "")
}

func pickVersion(installed []string, current string) (string, error) {
	options := make([]ui.SelectOption, len(installed))
	for i, v := range installed {
		options[i] = ui.SelectOption{Label: v, Value: v}
	}
	return ui.RunSelectPrompt("Select a Node version", options, resolveVersion(installed, current))
}

func pickCommand(current string) (string, error) {
	commands := cfg.RunnerCommands()
	if current != "" {
		commands = append([]string{current}, commands...)
	}
	var options []ui.SelectOption
	seen := make(map[string]bool)
	for _, c := range commands {
		if seen[c] {
			continue
		}
		seen[c] = true
		options = append(options, ui.SelectOption{Label: c, Value: c})
	}
	return ui.RunSelectPrompt("Select a run command", options, current)
}
