package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/harshul/apprunner/internal/config"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apprunner",
	Short: "Run and supervise local Node dev servers",
	Long: `apprunner starts a project's dev server with the right Node version,
streams its colored output into a console, shows the port it listens on,
and stops the whole process tree when you are done.

Usage:
  apprunner init        Detect the project and write a .apprunner.yaml file
  apprunner run         Start the dev server in the interactive console
  apprunner versions    List installed Node versions
  apprunner doctor      Check that a project is ready to run
  apprunner kill-port   Kill whatever is listening on a port`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json next to the binary or ~/.config/apprunner)")
	rootCmd.PersistentFlags().String("log-level", "", "diagnostic log level (debug, info, warn, error)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(killPortCmd)
	rootCmd.AddCommand(doctorCmd)
}

// newLogger creates the diagnostic logger. Under the console the terminal
// belongs to the UI, so records go to the configured log file or nowhere.
func newLogger(cmd *cobra.Command, console bool) (*log.Logger, func(), error) {
	level := cfg.LogLevel()
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if path := cfg.LogFile(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, func() { f.Close() }
	} else if console {
		w = io.Discard
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "apprunner",
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	return logger, closer, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
