package console

import (
	"strings"
	"sync"
)

// DefaultMaxLines is the number of lines a Buffer keeps.
const DefaultMaxLines = 1000

// Buffer collects styled segments as rendered lines, dropping the oldest
// lines once full. The last line may be partial until a newline arrives.
type Buffer struct {
	lines    []string
	partial  strings.Builder
	maxLines int
	mu       sync.RWMutex
}

// NewBuffer creates a buffer holding up to maxLines complete lines.
func NewBuffer(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{
		lines:    make([]string, 0, maxLines),
		maxLines: maxLines,
	}
}

// Append renders segments into the buffer.
func (b *Buffer) Append(segments []Segment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, seg := range segments {
		text := strings.ReplaceAll(seg.Text, "\r", "")
		for {
			idx := strings.IndexByte(text, '\n')
			if idx < 0 {
				if text != "" {
					b.partial.WriteString(seg.Style.Render(text))
				}
				break
			}
			if idx > 0 {
				b.partial.WriteString(seg.Style.Render(text[:idx]))
			}
			b.pushLocked(b.partial.String())
			b.partial.Reset()
			text = text[idx+1:]
		}
	}
}

func (b *Buffer) pushLocked(line string) {
	if len(b.lines) >= b.maxLines {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:len(b.lines)-1]
	}
	b.lines = append(b.lines, line)
}

// Lines returns all lines, including a trailing partial line.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]string, len(b.lines), len(b.lines)+1)
	copy(result, b.lines)
	if b.partial.Len() > 0 {
		result = append(result, b.partial.String())
	}
	return result
}

// String joins all lines with newlines.
func (b *Buffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = b.lines[:0]
	b.partial.Reset()
}

// Len returns the number of complete lines.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}
