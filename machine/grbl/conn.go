// Package grbl implements the machine collaborator contracts on top of a
// grbl controller reached over a serial line or an SPJS bridge.
package grbl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrReset is returned from command methods if a controller reset is
// encountered before the command is acknowledged.
var ErrReset = errors.New("grbl reset")

// Conn provides line-level access to a grbl controller: commands are
// written one line at a time and block until the controller acknowledges
// them; unsolicited push messages (status reports, probe results) are
// delivered on Push.
type Conn struct {
	rw io.ReadWriter

	ackCh   chan error
	resetCh chan struct{}
	closeCh chan struct{}
	push    chan string

	mx  sync.Mutex // serializes raw writes
	wMx sync.Mutex // serializes command lines
}

// NewConn creates a Conn using the provided ReadWriter for data and starts
// its read loop.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:      rw,
		ackCh:   make(chan error),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		push:    make(chan string, 16),
	}
	go c.readLoop()
	return c
}

// Close aborts any in-progress command and closes the underlying
// ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	close(c.closeCh)
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Push delivers unsolicited controller messages: status reports and
// bracketed feedback lines.
func (c *Conn) Push() <-chan string { return c.push }

func (c *Conn) readLoop() {
	scan := bufio.NewScanner(c.rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		switch {
		case line == "":
		case line == "ok":
			select {
			case c.ackCh <- nil:
			case <-c.closeCh:
				return
			}
		case strings.HasPrefix(line, "error:"), strings.HasPrefix(line, "ALARM:"):
			select {
			case c.ackCh <- fmt.Errorf("grbl: %s", line):
			case <-c.closeCh:
				return
			}
		case strings.HasPrefix(line, "Grbl "):
			// welcome banner: the controller reset under us
			select {
			case c.resetCh <- struct{}{}:
			default:
			}
		default:
			select {
			case c.push <- line:
			case <-c.closeCh:
				return
			}
		}
	}
}

// Run writes one command line and blocks until the controller acknowledges
// it. Motion commands are therefore synchronous up to the planner; callers
// that need physical completion also wait for an Idle status report.
func (c *Conn) Run(line string) error {
	c.wMx.Lock()
	defer c.wMx.Unlock()

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	c.mx.Lock()
	_, err := io.WriteString(c.rw, line)
	c.mx.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.resetCh:
		return ErrReset
	case err := <-c.ackCh:
		return err
	}
}

// Realtime writes a single realtime command byte (like `?`) without line
// framing or acknowledgement.
func (c *Conn) Realtime(b byte) error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}
	c.mx.Lock()
	_, err := c.rw.Write([]byte{b})
	c.mx.Unlock()
	return err
}
