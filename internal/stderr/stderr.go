//go:build !windows

// Package stderr redirects file descriptor 2 while a full screen view is
// up, so audio libraries writing there directly (ALSA through the local
// speaker, log output) do not corrupt the screen.
package stderr

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"syscall"
)

// Capture holds fd 2 redirected into a pipe.
type Capture struct {
	lines chan string
	orig  int
	r, w  *os.File
	once  sync.Once
	done  chan struct{}
}

// Start redirects fd 2. Lines written meanwhile arrive on Lines; when the
// reader falls behind, they are dropped.
func Start() (*Capture, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	fd := int(os.Stderr.Fd())
	orig, err := syscall.Dup(fd)
	if err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	if err := syscall.Dup2(int(w.Fd()), fd); err != nil {
		syscall.Close(orig)
		r.Close()
		w.Close()
		return nil, err
	}

	c := &Capture{
		lines: make(chan string, 100),
		orig:  orig,
		r:     r,
		w:     w,
		done:  make(chan struct{}),
	}
	go c.read()
	return c, nil
}

func (c *Capture) read() {
	defer close(c.done)
	defer close(c.lines)
	scanner := bufio.NewScanner(c.r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		default:
		}
	}
}

// Lines delivers captured lines. It is closed after Stop.
func (c *Capture) Lines() <-chan string {
	return c.lines
}

// WriteOriginal writes to the terminal's stderr, bypassing the capture.
func (c *Capture) WriteOriginal(msg string) {
	_, _ = syscall.Write(c.orig, []byte(msg))
}

// Stop restores fd 2. Calling Stop more than once does nothing.
func (c *Capture) Stop() {
	c.once.Do(func() {
		_ = syscall.Dup2(c.orig, int(os.Stderr.Fd()))
		_ = syscall.Close(c.orig)
		// the pipe's last writer is gone once fd 2 is restored
		c.w.Close()
		<-c.done
		c.r.Close()
	})
}
