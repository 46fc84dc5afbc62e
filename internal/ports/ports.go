// Package ports guesses which port a dev server bound by reading its output.
package ports

import (
	"regexp"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Patterns are tried in order; the first one matching anywhere in the text
// wins. The colon pattern is broad and will also match things like
// timestamps, so results are for display only.
var Patterns = []*regexp.Regexp{
	// "Server listening on port 4000"
	regexp.MustCompile(`on port (\d+)`),
	// ":3000", "localhost:5173/"
	regexp.MustCompile(`:(\d+)`),
	// "port 8080"
	regexp.MustCompile(`port (\d+)`),
	// "http://127.0.0.1:4200"
	regexp.MustCompile(`http://[^:]+:(\d+)`),
}

// Detect returns the port reported in text, if any. Escape sequences are
// stripped first so colored URLs still match.
func Detect(text string) (string, bool) {
	plain := ansi.Strip(text)
	for _, pattern := range Patterns {
		m := pattern.FindStringSubmatch(plain)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}
	return "", false
}

// Detector remembers the most recently detected port.
type Detector struct {
	mu      sync.Mutex
	current string
}

// Scan checks text for a port. It returns the port and whether the current
// value changed.
func (d *Detector) Scan(text string) (string, bool) {
	port, ok := Detect(text)
	if !ok {
		return "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	changed := port != d.current
	d.current = port
	return port, changed
}

// Current returns the last detected port, or "" if none.
func (d *Detector) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Reset forgets the current port.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = ""
}
