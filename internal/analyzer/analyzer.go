package analyzer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/harshul/apprunner/internal/provisioner"
)

// ProjectInfo contains what could be detected about a Node project.
type ProjectInfo struct {
	// Root is the analyzed directory
	Root string
	// Name is the package name, or the directory name
	Name string
	// NodeVersion is the requested node version or range, if any
	NodeVersion string
	// VersionSource names the file NodeVersion came from
	VersionSource string
	// RunCommand is the best-guess command to start the dev server
	RunCommand string
	// Manager is the package manager implied by the lock files
	Manager provisioner.PackageManager
	// HasDependencies is false when node_modules is missing
	HasDependencies bool
}

// scriptPriority lists package.json scripts in the order they are preferred
// for starting a dev server.
var scriptPriority = []string{"dev", "start", "serve"}

// versionFiles are checked before package.json engines.
var versionFiles = []string{".nvmrc", ".node-version"}

type packageJSON struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`
	Engines struct {
		Node string `json:"node"`
	} `json:"engines"`
}

// AnalyzeProject inspects path and returns detected project information.
// A directory without package.json is not an error; it yields a ProjectInfo
// with only Root and Name set.
func AnalyzeProject(path string) (ProjectInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ProjectInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ProjectInfo{}, err
	}
	if !info.IsDir() {
		return ProjectInfo{}, os.ErrInvalid
	}

	projectInfo := ProjectInfo{
		Root: abs,
		Name: filepath.Base(abs),
	}

	for _, name := range versionFiles {
		if v := readVersionFile(filepath.Join(abs, name)); v != "" {
			projectInfo.NodeVersion = v
			projectInfo.VersionSource = name
			break
		}
	}

	data, err := os.ReadFile(filepath.Join(abs, "package.json"))
	if err != nil {
		return projectInfo, nil
	}

	pm := provisioner.Detect(abs)
	projectInfo.Manager = pm.Manager
	if _, err := os.Stat(filepath.Join(abs, "node_modules")); err == nil {
		projectInfo.HasDependencies = true
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		projectInfo.RunCommand = RunScript(pm.Manager, "start")
		return projectInfo, nil
	}

	if pkg.Name != "" {
		projectInfo.Name = pkg.Name
	}
	if projectInfo.NodeVersion == "" && pkg.Engines.Node != "" {
		projectInfo.NodeVersion = pkg.Engines.Node
		projectInfo.VersionSource = "package.json"
	}

	projectInfo.RunCommand = RunScript(pm.Manager, "start")
	for _, script := range scriptPriority {
		if _, ok := pkg.Scripts[script]; ok {
			projectInfo.RunCommand = RunScript(pm.Manager, script)
			break
		}
	}

	return projectInfo, nil
}

// RunScript returns the command that runs a package.json script.
func RunScript(manager provisioner.PackageManager, script string) string {
	switch manager {
	case provisioner.Yarn:
		return "yarn " + script
	case provisioner.PNPM:
		return "pnpm " + script
	case provisioner.Bun:
		return "bun run " + script
	}
	if script == "start" {
		return "npm start"
	}
	return "npm run " + script
}

// readVersionFile returns the first non-comment line of an .nvmrc style file.
func readVersionFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Aliases like "lts/*" or "node" cannot be mapped to a directory.
		if strings.ContainsAny(line, "/*") || !strings.ContainsAny(line, "0123456789") {
			return ""
		}
		return line
	}
	return ""
}
