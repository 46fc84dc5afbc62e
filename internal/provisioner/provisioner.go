// Package provisioner picks the dependency install command for a project.
package provisioner

import (
	"os"
	"path/filepath"
	"strings"
)

// PackageManager names a Node package manager.
type PackageManager string

const (
	NPM  PackageManager = "npm"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	Bun  PackageManager = "bun"
)

// Info describes the package manager chosen for a project.
type Info struct {
	Manager        PackageManager
	LockFile       string
	InstallCommand []string
	IsMonorepo     bool
}

// Detect checks the project directory for lock files and workspace markers.
// Priority: pnpm > bun > yarn > npm. npm is the fallback when no marker exists.
func Detect(projectPath string) Info {
	switch {
	case exists(projectPath, "pnpm-lock.yaml"):
		info := Info{Manager: PNPM, LockFile: "pnpm-lock.yaml", IsMonorepo: detectPnpmWorkspace(projectPath)}
		info.InstallCommand = pnpmInstall(info.IsMonorepo)
		return info

	// pnpm workspace without a lock file yet
	case exists(projectPath, "pnpm-workspace.yaml"), usesWorkspaceProtocol(projectPath):
		return Info{Manager: PNPM, LockFile: "pnpm-lock.yaml", IsMonorepo: true, InstallCommand: pnpmInstall(true)}

	case exists(projectPath, "bun.lockb"):
		return Info{Manager: Bun, LockFile: "bun.lockb", IsMonorepo: declaresWorkspaces(projectPath), InstallCommand: []string{"bun", "install"}}
	case exists(projectPath, "bun.lock"):
		return Info{Manager: Bun, LockFile: "bun.lock", IsMonorepo: declaresWorkspaces(projectPath), InstallCommand: []string{"bun", "install"}}

	case exists(projectPath, "yarn.lock"):
		return Info{Manager: Yarn, LockFile: "yarn.lock", IsMonorepo: declaresWorkspaces(projectPath), InstallCommand: []string{"yarn", "install"}}
	}

	return Info{
		Manager:        NPM,
		LockFile:       "package-lock.json",
		IsMonorepo:     declaresWorkspaces(projectPath),
		InstallCommand: []string{"npm", "install"},
	}
}

func pnpmInstall(recursive bool) []string {
	if recursive {
		return []string{"pnpm", "install", "-r"}
	}
	return []string{"pnpm", "install"}
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func readPackageJSON(projectPath string) string {
	data, err := os.ReadFile(filepath.Join(projectPath, "package.json"))
	if err != nil {
		return ""
	}
	return string(data)
}

// usesWorkspaceProtocol reports whether package.json uses the pnpm-only
// workspace: protocol.
func usesWorkspaceProtocol(projectPath string) bool {
	return strings.Contains(readPackageJSON(projectPath), "\"workspace:")
}

func detectPnpmWorkspace(projectPath string) bool {
	return exists(projectPath, "pnpm-workspace.yaml") || usesWorkspaceProtocol(projectPath)
}

// declaresWorkspaces covers yarn, bun and npm workspaces, all declared in package.json.
func declaresWorkspaces(projectPath string) bool {
	return strings.Contains(readPackageJSON(projectPath), "\"workspaces\"")
}

// ManagerName returns a user-friendly name for the package manager.
func ManagerName(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "pnpm"
	case Yarn:
		return "Yarn"
	case Bun:
		return "Bun"
	case NPM:
		return "npm"
	default:
		return string(manager)
	}
}
