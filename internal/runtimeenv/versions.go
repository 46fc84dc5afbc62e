package runtimeenv

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrNoMatchingVersion is returned by Match when no installed version
// satisfies the requested constraint.
var ErrNoMatchingVersion = errors.New("no installed version matches")

// Versions lists the version directories under root, newest first. Only
// directories named like "v18.17.0" are considered; entries that are not
// valid versions sort after the rest by name.
func Versions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "v") {
			names = append(names, e.Name())
		}
	}

	sort.SliceStable(names, func(i, j int) bool {
		vi, erri := semver.NewVersion(names[i])
		vj, errj := semver.NewVersion(names[j])
		switch {
		case erri == nil && errj == nil:
			return vi.GreaterThan(vj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		}
		return names[i] < names[j]
	})
	return names, nil
}

// Match returns the newest installed version satisfying constraint, which may
// be an exact version ("18.17.0", "v18.17.0") or a range (">=18", "^20.1").
func Match(installed []string, constraint string) (string, error) {
	c, err := semver.NewConstraint(strings.TrimPrefix(strings.TrimSpace(constraint), "v"))
	if err != nil {
		return "", fmt.Errorf("parse node version %q: %w", constraint, err)
	}
	for _, name := range installed {
		v, err := semver.NewVersion(name)
		if err != nil {
			continue
		}
		if c.Check(v) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrNoMatchingVersion, constraint)
}
