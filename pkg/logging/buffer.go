package logging

import (
	"strings"
	"sync"
)

// recentCapacity bounds the lines kept for the HTTP API.
const recentCapacity = 64

// LineBuffer is an io.Writer keeping the most recent lines in a fixed ring.
// Each Write is one record.
type LineBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	count int
}

func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LineBuffer{lines: make([]string, capacity)}
}

// Recent receives the capture handler's output.
var Recent = NewLineBuffer(recentCapacity)

func (b *LineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = strings.TrimRight(string(p), "\n")
	b.next = (b.next + 1) % len(b.lines)
	if b.count < len(b.lines) {
		b.count++
	}
	return len(p), nil
}

// Last returns up to n lines, oldest first.
func (b *LineBuffer) Last(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}
	size := len(b.lines)
	start := (b.next - n + size) % size
	out := make([]string, n)
	for i := range out {
		out[i] = b.lines[(start+i)%size]
	}
	return out
}

// LastLine returns the most recent line, or "" before the first write.
func (b *LineBuffer) LastLine() string {
	if l := b.Last(1); len(l) == 1 {
		return l[0]
	}
	return ""
}
