//go:build windows

package stderr

import (
	"os"
	"sync"
)

// Capture is a no-op on Windows; nothing writes to the console behind Go's
// back there.
type Capture struct {
	lines chan string
	once  sync.Once
}

// Start returns a Capture that never yields a line.
func Start() (*Capture, error) {
	return &Capture{lines: make(chan string)}, nil
}

// Lines is closed after Stop.
func (c *Capture) Lines() <-chan string {
	return c.lines
}

// WriteOriginal writes to stderr.
func (c *Capture) WriteOriginal(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}

// Stop closes Lines.
func (c *Capture) Stop() {
	c.once.Do(func() { close(c.lines) })
}
