package blueprint

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/harshul/apprunner/internal/analyzer"
)

// FileName is the per-project configuration file.
const FileName = ".apprunner.yaml"

// Blueprint is the per-project run configuration.
type Blueprint struct {
	Name        string `yaml:"name"`
	NodeVersion string `yaml:"node,omitempty"`
	RunCommand  string `yaml:"run,omitempty"`
	Install     bool   `yaml:"install,omitempty"`
}

// FromProjectInfo converts analysis results into a blueprint. Dependencies
// are installed on first run when node_modules is missing.
func FromProjectInfo(p analyzer.ProjectInfo) Blueprint {
	return Blueprint{
		Name:        p.Name,
		NodeVersion: p.NodeVersion,
		RunCommand:  p.RunCommand,
		Install:     p.RunCommand != "" && !p.HasDependencies,
	}
}

// Write writes the blueprint as a YAML file.
func Write(path string, bp Blueprint) error {
	data, err := yaml.Marshal(&bp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a blueprint from path.
func Read(path string) (Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blueprint{}, err
	}

	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return Blueprint{}, err
	}

	if bp.Name == "" {
		return Blueprint{}, errors.New("invalid configuration: missing name")
	}

	return bp, nil
}
