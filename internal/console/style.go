// Package console turns raw child-process output into styled text segments.
package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette colors for SGR foreground codes.
var (
	Black   = lipgloss.Color("#000000")
	Red     = lipgloss.Color("#FF0000")
	Green   = lipgloss.Color("#008000")
	Yellow  = lipgloss.Color("#FFFF00")
	Blue    = lipgloss.Color("#0000FF")
	Magenta = lipgloss.Color("#FF00FF")
	Cyan    = lipgloss.Color("#00FFFF")
	White   = lipgloss.Color("#FFFFFF")

	Gray          = lipgloss.Color("#808080")
	BrightRed     = lipgloss.Color("#FF6464")
	BrightGreen   = lipgloss.Color("#64FF64")
	BrightYellow  = lipgloss.Color("#FFFF64")
	BrightBlue    = lipgloss.Color("#6464FF")
	BrightMagenta = lipgloss.Color("#FF64FF")
	BrightCyan    = lipgloss.Color("#64FFFF")
	BrightWhite   = lipgloss.Color("#FFFFFF")
)

var palette = map[int]lipgloss.Color{
	30: Black, 31: Red, 32: Green, 33: Yellow,
	34: Blue, 35: Magenta, 36: Cyan, 37: White,
	90: Gray, 91: BrightRed, 92: BrightGreen, 93: BrightYellow,
	94: BrightBlue, 95: BrightMagenta, 96: BrightCyan, 97: BrightWhite,
}

// Style is the text style applied to output.
type Style struct {
	Foreground lipgloss.Color
	// Background is reserved; background codes are consumed but not applied.
	Background lipgloss.Color
}

// DefaultStyle is white text, the console's neutral color.
var DefaultStyle = Style{Foreground: White}

// Render applies the style to text line by line, so multi-line text is not
// padded into a block.
func (s Style) Render(text string) string {
	st := lipgloss.NewStyle().Foreground(s.Foreground)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = st.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Segment is one contiguous run of text in a single style.
type Segment struct {
	Text  string
	Style Style
}

// Render renders the segment text in its style.
func (s Segment) Render() string {
	return s.Style.Render(s.Text)
}

// Plain returns a single default-styled segment for text.
func Plain(text string) []Segment {
	return []Segment{{Text: text, Style: DefaultStyle}}
}

// Colored returns a single segment for text in the given foreground.
func Colored(text string, fg lipgloss.Color) []Segment {
	return []Segment{{Text: text, Style: Style{Foreground: fg}}}
}
