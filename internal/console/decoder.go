package console

import (
	"strings"
	"unicode/utf8"
)

// Decoder converts a byte stream into UTF-8 text chunk by chunk. A rune split
// across chunks is held back until its remaining bytes arrive; invalid bytes
// become U+FFFD.
type Decoder struct {
	pending []byte
}

// Decode returns the text for p plus any bytes carried from the last call.
func (d *Decoder) Decode(p []byte) string {
	buf := append(d.pending, p...)
	d.pending = nil

	// Look back at most UTFMax-1 bytes for an unfinished rune.
	cut := len(buf)
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-(utf8.UTFMax-1); i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				cut = i
			}
			break
		}
	}
	if cut < len(buf) {
		d.pending = append([]byte(nil), buf[cut:]...)
	}
	return strings.ToValidUTF8(string(buf[:cut]), "�")
}

// Flush returns whatever is still held back.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	s := strings.ToValidUTF8(string(d.pending), "�")
	d.pending = nil
	return s
}
