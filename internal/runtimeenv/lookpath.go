package runtimeenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Suffixes are probed in this order for every search path directory.
// Shell wrappers come first: npm, yarn and pnpm ship as .cmd launchers on
// Windows, next to a node.exe that must not win.
var Suffixes = []string{".cmd", ".bat", ".exe", ""}

// ErrNotFound reports that a program is not on the search path.
var ErrNotFound = errors.New("executable not found")

// NotFoundError describes a failed lookup.
type NotFoundError struct {
	Name       string
	SearchPath []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q not found in %d search path entries", ErrNotFound, e.Name, len(e.SearchPath))
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// LookPath finds name on env's search path. Directories are tried in order
// and, within a directory, Suffixes in order; the first regular file wins.
// A name containing a path separator is only probed as given, relative to
// dir when it is not absolute. An empty dir means the current directory.
func LookPath(name, dir string, env *Environment) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		base := name
		if !filepath.IsAbs(base) && dir != "" {
			base = filepath.Join(dir, base)
		}
		if path, ok := probe(base); ok {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			return path, nil
		}
		return "", &NotFoundError{Name: name}
	}

	dirs := env.SearchPath()
	for _, dir := range dirs {
		if path, ok := probe(filepath.Join(dir, name)); ok {
			return path, nil
		}
	}
	return "", &NotFoundError{Name: name, SearchPath: dirs}
}

func probe(base string) (string, bool) {
	for _, suffix := range Suffixes {
		candidate := base + suffix
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// Command returns the program and arguments used to launch a resolved path.
// Batch wrappers cannot be started directly on Windows and go through cmd.exe.
func Command(path string, args []string) (string, []string) {
	if runtime.GOOS != "windows" {
		return path, args
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cmd", ".bat":
		return "cmd.exe", append([]string{"/c", path}, args...)
	}
	return path, args
}
