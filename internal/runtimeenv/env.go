// Package runtimeenv composes the environment a supervised project runs in and
// finds programs on the composed search path.
//
// Nothing here reads or writes the process-wide environment: callers pass a
// snapshot (usually os.Environ()) and get a new Environment back.
package runtimeenv

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// PathVar is the name of the search path variable.
const PathVar = "PATH"

// Passthrough lists variables copied unmodified from the ambient environment
// when present. nvm-windows reads them to locate its install and symlink.
var Passthrough = []string{"NVM_HOME", "NVM_SYMLINK"}

var (
	// ErrNoVersionRoot is returned when the runtime version root is empty.
	ErrNoVersionRoot = errors.New("runtime version root is not set")
	// ErrNoVersion is returned when no runtime version was selected.
	ErrNoVersion = errors.New("runtime version is not selected")
)

// Environment is an ordered set of environment variables.
type Environment struct {
	names  []string
	values map[string]string
}

// FromEnviron builds an Environment from KEY=VALUE pairs. Later duplicates
// overwrite earlier ones but keep the original position.
func FromEnviron(environ []string) *Environment {
	e := &Environment{values: make(map[string]string, len(environ))}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		e.Set(name, value)
	}
	return e
}

// Get returns the value of name. On Windows names compare case-insensitively.
func (e *Environment) Get(name string) (string, bool) {
	key, ok := e.lookupName(name)
	if !ok {
		return "", false
	}
	return e.values[key], true
}

// Set adds or replaces name. An existing variable keeps its spelling and position.
func (e *Environment) Set(name, value string) {
	if key, ok := e.lookupName(name); ok {
		e.values[key] = value
		return
	}
	e.names = append(e.names, name)
	e.values[name] = value
}

// Environ returns the variables as KEY=VALUE pairs, suitable for exec.Cmd.Env.
func (e *Environment) Environ() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, name+"="+e.values[name])
	}
	return out
}

// SearchPath returns the search path split into directories.
func (e *Environment) SearchPath() []string {
	value, _ := e.Get(PathVar)
	return SplitPath(value)
}

func (e *Environment) lookupName(name string) (string, bool) {
	if _, ok := e.values[name]; ok {
		return name, true
	}
	if runtime.GOOS != "windows" {
		return "", false
	}
	for _, existing := range e.names {
		if strings.EqualFold(existing, name) {
			return existing, true
		}
	}
	return "", false
}

// SplitPath splits a search path value on the platform list separator,
// dropping empty entries.
func SplitPath(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, string(os.PathListSeparator))
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// VersionDir returns the directory holding a runtime version under root.
func VersionDir(root, version string) string {
	return filepath.Join(root, version)
}

// Resolve composes the environment for running a project with the given
// runtime version. Every search path entry under root is removed so a
// previously activated version cannot shadow the selected one, then the
// version directory and root are prepended, in that order.
//
// Resolution is textual; the version directory is not required to exist.
func Resolve(ambient []string, root, version string) (*Environment, error) {
	if root == "" {
		return nil, ErrNoVersionRoot
	}
	if version == "" {
		return nil, ErrNoVersion
	}

	base := FromEnviron(ambient)
	env := FromEnviron(ambient)

	current, _ := base.Get(PathVar)
	entries := []string{VersionDir(root, version), root}
	for _, dir := range SplitPath(current) {
		if hasPathPrefix(dir, root) {
			continue
		}
		entries = append(entries, dir)
	}
	env.Set(PathVar, strings.Join(entries, string(os.PathListSeparator)))

	for _, name := range Passthrough {
		if value, ok := base.Get(name); ok {
			env.Set(name, value)
		}
	}

	return env, nil
}

func hasPathPrefix(dir, root string) bool {
	if runtime.GOOS == "windows" {
		return len(dir) >= len(root) && strings.EqualFold(dir[:len(root)], root)
	}
	return strings.HasPrefix(dir, root)
}
