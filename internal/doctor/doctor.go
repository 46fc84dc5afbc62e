// Package doctor checks whether a project can be started: the Node runtime
// it asks for, its package manager, installed dependencies and env files.
package doctor

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/harshul/apprunner/internal/analyzer"
	"github.com/harshul/apprunner/internal/provisioner"
	"github.com/harshul/apprunner/internal/runtimeenv"
)

// RuntimeStatus represents the status of the Node runtime check
type RuntimeStatus struct {
	Requested string // version or range the project asks for
	Version   string // version directory or `node --version` output
	Installed bool
	Path      string
}

// DependencyStatus represents the status of project dependencies
type DependencyStatus struct {
	Manager          provisioner.PackageManager
	Installed        bool   // node_modules exists
	InstallCommand   string // command to install dependencies
	ManagerInstalled bool   // the package manager resolves on the search path
	FixCommand       string // one-liner to get the package manager
	IsMonorepo       bool
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	Project      analyzer.ProjectInfo
	Runtime      RuntimeStatus
	Dependencies DependencyStatus
	Env          EnvStatus
	Healthy      bool
	Issues       []string
}

// Diagnose checks the project described by info. Node versions are looked up
// under versionRoot; environ is the ambient environment.
func Diagnose(info analyzer.ProjectInfo, versionRoot string, environ []string) Diagnosis {
	d := Diagnosis{Project: info, Healthy: true}

	env := runtimeenv.FromEnviron(environ)
	d.Runtime, env = checkRuntime(info.NodeVersion, versionRoot, environ, env)
	if !d.Runtime.Installed {
		if info.NodeVersion != "" {
			d.issue(fmt.Sprintf("Node %s is not installed in %s (try 'nvm install %s')", info.NodeVersion, versionRoot, info.NodeVersion))
		} else {
			d.issue("Node.js is not on PATH")
		}
	}

	// Without package.json there is nothing to install.
	if info.RunCommand != "" {
		d.Dependencies = checkDependencies(info, env)
		if !d.Dependencies.ManagerInstalled {
			d.issue(fmt.Sprintf("%s is required but not installed: %s", provisioner.ManagerName(d.Dependencies.Manager), d.Dependencies.FixCommand))
		}
		if !d.Dependencies.Installed {
			d.issue("Dependencies are not installed (run '" + d.Dependencies.InstallCommand + "')")
		}
	}

	if envStatus, err := CheckEnv(info.Root, environ); err == nil {
		d.Env = envStatus
		if len(envStatus.Missing) > 0 {
			d.issue("Missing environment variables: " + strings.Join(envStatus.Missing, ", "))
		}
	}
	return d
}

func (d *Diagnosis) issue(msg string) {
	d.Healthy = false
	d.Issues = append(d.Issues, msg)
}

// checkRuntime finds node for the requested version, or on the ambient
// search path when none is requested. It returns the environment a run
// would use.
func checkRuntime(requested, root string, environ []string, ambient *runtimeenv.Environment) (RuntimeStatus, *runtimeenv.Environment) {
	status := RuntimeStatus{Requested: requested}
	env := ambient

	if requested != "" {
		installed, _ := runtimeenv.Versions(root)
		dir, err := runtimeenv.Match(installed, requested)
		if err != nil {
			return status, ambient
		}
		resolved, err := runtimeenv.Resolve(environ, root, dir)
		if err != nil {
			return status, ambient
		}
		env = resolved
		status.Version = dir
	}

	path, err := runtimeenv.LookPath("node", "", env)
	if err != nil {
		return status, env
	}
	status.Installed = true
	status.Path = path

	if status.Version == "" {
		if out, err := exec.Command(path, "--version").Output(); err == nil {
			status.Version = strings.TrimSpace(string(out))
		}
	}
	return status, env
}

func checkDependencies(info analyzer.ProjectInfo, env *runtimeenv.Environment) DependencyStatus {
	pm := provisioner.Detect(info.Root)
	status := DependencyStatus{
		Manager:        pm.Manager,
		Installed:      info.HasDependencies,
		InstallCommand: strings.Join(pm.InstallCommand, " "),
		IsMonorepo:     pm.IsMonorepo,
	}

	_, err := runtimeenv.LookPath(string(pm.Manager), "", env)
	status.ManagerInstalled = err == nil
	if !status.ManagerInstalled {
		status.FixCommand = fixCommand(pm.Manager, env)
	}
	return status
}

// fixCommand returns the usual way to get manager.
func fixCommand(manager provisioner.PackageManager, env *runtimeenv.Environment) string {
	switch manager {
	case provisioner.Bun:
		return "curl -fsSL https://bun.sh/install | bash"
	case provisioner.PNPM, provisioner.Yarn:
		if _, err := runtimeenv.LookPath("corepack", "", env); err == nil {
			return "corepack enable " + string(manager)
		}
		return "npm install -g " + string(manager)
	}
	return "Install Node.js from https://nodejs.org"
}
