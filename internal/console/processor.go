package console

import (
	"regexp"
	"strconv"
	"strings"
)

const esc = '\x1b'

// maxPending bounds how much of an unfinished escape sequence is carried
// into the next chunk. Anything longer is treated as garbage.
const maxPending = 256

var (
	// CSI: ESC [ parameter bytes, intermediate bytes, final byte.
	csiPattern = regexp.MustCompile("\x1b\\[[0-?]*[ -/]*[@-~]")

	// Everything else that starts with ESC: OSC strings, two-byte escapes, a
	// lone ESC. Matched text is dropped.
	escPattern = regexp.MustCompile("\x1b(?:\\][^\x07\x1b]*(?:\x07|\x1b\\\\)|[ -/]*[0-~])?")
)

// Processor splits output text on escape sequences and tracks the current
// style across calls. Only SGR foreground colors change the style; all other
// sequences are consumed and never shown.
//
// A Processor is not safe for concurrent use.
type Processor struct {
	style   Style
	pending string
}

// NewProcessor returns a Processor in the default style.
func NewProcessor() *Processor {
	return &Processor{style: DefaultStyle}
}

// Style returns the style that applies to the next text.
func (p *Processor) Style() Style {
	return p.style
}

// Reset restores the default style and drops any carried partial sequence.
func (p *Processor) Reset() {
	p.style = DefaultStyle
	p.pending = ""
}

// Feed processes one chunk and returns its displayable segments in order.
// A sequence cut off at the end of the chunk is completed by the next call.
func (p *Processor) Feed(text string) []Segment {
	text = p.pending + text
	text, p.pending = splitIncomplete(text)
	if text == "" {
		return nil
	}

	var out []Segment
	last := 0
	for _, loc := range csiPattern.FindAllStringIndex(text, -1) {
		out = p.appendText(out, text[last:loc[0]])
		p.apply(text[loc[0]:loc[1]])
		last = loc[1]
	}
	return p.appendText(out, text[last:])
}

func (p *Processor) appendText(out []Segment, text string) []Segment {
	if strings.IndexByte(text, esc) >= 0 {
		text = escPattern.ReplaceAllString(text, "")
	}
	if text == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Style == p.style {
		out[n-1].Text += text
		return out
	}
	return append(out, Segment{Text: text, Style: p.style})
}

// apply updates the style from one complete CSI sequence.
func (p *Processor) apply(seq string) {
	if seq[len(seq)-1] != 'm' {
		return
	}
	params := seq[2 : len(seq)-1]
	if params == "" {
		p.style = DefaultStyle
		return
	}
	// Private-use parameter strings are not SGR.
	if c := params[0]; c >= '<' && c <= '?' {
		return
	}

	fields := strings.Split(params, ";")
	for i := 0; i < len(fields); i++ {
		if fields[i] == "" {
			continue
		}
		code, err := strconv.Atoi(fields[i])
		if err != nil {
			continue
		}
		switch {
		case code == 0:
			p.style = DefaultStyle
		case code == 39:
			p.style.Foreground = DefaultStyle.Foreground
		case code == 38 || code == 48:
			// 256-color and truecolor forms carry their own arguments.
			i += extendedArgs(fields[i+1:])
		default:
			if c, ok := palette[code]; ok {
				p.style.Foreground = c
			}
			// 40-47, 49 and 100-107 are background codes; they are consumed
			// without effect along with attributes like bold or underline.
		}
	}
}

func extendedArgs(rest []string) int {
	if len(rest) == 0 {
		return 0
	}
	n := 0
	switch rest[0] {
	case "5":
		n = 2
	case "2":
		n = 4
	}
	return min(n, len(rest))
}

// splitIncomplete separates a trailing unfinished escape sequence from text.
func splitIncomplete(text string) (string, string) {
	i := strings.LastIndexByte(text, esc)
	if i < 0 {
		return text, ""
	}
	tail := text[i:]
	if len(tail) > maxPending || !incomplete(tail) {
		return text, ""
	}
	return text[:i], tail
}

func incomplete(tail string) bool {
	if len(tail) == 1 {
		return true
	}
	switch tail[1] {
	case '[':
		for j := 2; j < len(tail); j++ {
			if c := tail[j]; c < 0x20 || c > 0x3f {
				return false
			}
		}
		return true
	case ']':
		return strings.IndexByte(tail, '\x07') < 0
	default:
		for j := 1; j < len(tail); j++ {
			if c := tail[j]; c < 0x20 || c > 0x2f {
				return false
			}
		}
		return true
	}
}
