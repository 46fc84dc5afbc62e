// Package config handles apprunner configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (APPRUNNER_*)
//  2. Config file (--config, else config.json or config.yaml next to the
//     executable, else ~/.config/apprunner)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultGracePeriod is how long a stopped process gets to exit on its own.
	DefaultGracePeriod = 5 * time.Second
	// DefaultKillWait is how long to wait after the forced tree kill.
	DefaultKillWait = 1 * time.Second
	// DefaultStartTimeout bounds the wait for a process to launch.
	DefaultStartTimeout = 1 * time.Second
	// DefaultLogLevel is the diagnostic log level.
	DefaultLogLevel = "info"
)

// DefaultRunnerCommands are offered when no command is configured.
var DefaultRunnerCommands = []string{
	"yarn dev",
	"npm run dev",
	"npm run serve",
	"yarn start",
	"npm start",
}

// ErrServiceNotFound is returned by Service for an unknown name.
var ErrServiceNotFound = errors.New("service not found")

// Service is a named project entry. Keys match case-insensitively, so
// SERVICE_NAME style keys load as well.
type Service struct {
	Name        string `mapstructure:"service_name"`
	Dir         string `mapstructure:"service_dir"`
	NodeVersion string `mapstructure:"node_version"`
	RunCommand  string `mapstructure:"run_command"`
	Install     bool   `mapstructure:"npm_install"`
	// Older config files spell the install key this way.
	LegacyInstall bool `mapstructure:"nmp_install"`
}

// Version returns NodeVersion as a version directory name ("v18.17.0").
func (s Service) Version() string {
	if s.NodeVersion == "" || strings.HasPrefix(s.NodeVersion, "v") {
		return s.NodeVersion
	}
	return "v" + s.NodeVersion
}

// InstallRequested reports whether either install key is set.
func (s Service) InstallRequested() bool {
	return s.Install || s.LegacyInstall
}

// Config holds the apprunner configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources. An explicit path must exist;
// without one, a missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("nvm_dir", defaultNVMDir())
	v.SetDefault("default_project_dir", "")
	v.SetDefault("runner_commands", DefaultRunnerCommands)
	v.SetDefault("stop.grace_period", DefaultGracePeriod)
	v.SetDefault("stop.kill_wait", DefaultKillWait)
	v.SetDefault("start.timeout", DefaultStartTimeout)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "apprunner"))
		}
	}

	v.SetEnvPrefix("APPRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// defaultNVMDir guesses where node versions are installed: nvm-windows sets
// NVM_HOME, nvm sets NVM_DIR.
func defaultNVMDir() string {
	if dir := os.Getenv("NVM_HOME"); dir != "" {
		return dir
	}
	if dir := os.Getenv("NVM_DIR"); dir != "" {
		return filepath.Join(dir, "versions", "node")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".nvm", "versions", "node")
	}
	return ""
}

// ConfigFile returns the file the configuration was read from, if any.
func (c *Config) ConfigFile() string {
	return c.v.ConfigFileUsed()
}

// NVMDir returns the directory holding one subdirectory per node version.
func (c *Config) NVMDir() string {
	return c.v.GetString("nvm_dir")
}

// DefaultProjectDir returns the directory whose subdirectories are offered
// as projects.
func (c *Config) DefaultProjectDir() string {
	return c.v.GetString("default_project_dir")
}

// RunnerCommands returns the commands offered for running a project.
func (c *Config) RunnerCommands() []string {
	return c.v.GetStringSlice("runner_commands")
}

// Services returns the configured service entries.
func (c *Config) Services() ([]Service, error) {
	var services []Service
	if err := c.v.UnmarshalKey("services", &services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	return services, nil
}

// Service looks up a service entry by name, ignoring case.
func (c *Config) Service(name string) (Service, error) {
	services, err := c.Services()
	if err != nil {
		return Service{}, err
	}
	for _, s := range services {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return Service{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
}

// Projects lists the directories under DefaultProjectDir.
func (c *Config) Projects() ([]string, error) {
	root := c.DefaultProjectDir()
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}

// GracePeriod returns how long a stopped process gets to exit on its own.
func (c *Config) GracePeriod() time.Duration {
	return c.duration("stop.grace_period", DefaultGracePeriod)
}

// KillWait returns how long to wait for exit after the forced kill.
func (c *Config) KillWait() time.Duration {
	return c.duration("stop.kill_wait", DefaultKillWait)
}

// StartTimeout returns the bound on launching a process.
func (c *Config) StartTimeout() time.Duration {
	return c.duration("start.timeout", DefaultStartTimeout)
}

// LogLevel returns the diagnostic log level name.
func (c *Config) LogLevel() string {
	return c.v.GetString("log.level")
}

// LogFile returns the diagnostic log file, or "" for the default.
func (c *Config) LogFile() string {
	return c.v.GetString("log.file")
}

// duration reads key as a duration ("5s", "1500ms"), falling back to def for
// unparsable or non-positive values.
func (c *Config) duration(key string, def time.Duration) time.Duration {
	d := c.v.GetDuration(key)
	if d <= 0 {
		return def
	}
	return d
}
