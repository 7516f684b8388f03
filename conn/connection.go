/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package conn implements the per-connection read/write pipeline and
// lifecycle shared by all three server modes. A single Connection type
// serves single-threaded non-blocking, multi-threaded non-blocking, and
// single-threaded coroutine service: its own sync.Mutex around DoRead/
// DoWrite is what the multi-threaded mode needs to serialise two workers
// racing on the same fd, and costs nothing (an uncontended lock) in the
// two single-threaded modes. This replaces the original's three
// near-duplicate Connection classes with one generalised across all of
// them, per the Design Notes' Waker-capability suggestion.
package conn

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/memkv/command"
	"github.com/sabouaram/memkv/coroutine"
	"github.com/sabouaram/memkv/protocol"
)

const bufSize = 4096

// EventType is the readiness event the acceptor hands to a coroutine-mode
// connection before unblocking its coroutine.
type EventType int

const (
	EventNone EventType = iota
	EventDoRead
	EventDoWrite
	EventClose
	EventOnClose
	EventOnError
)

// Connection holds one client's buffers, in-progress parse state, and
// outbound response queue.
type Connection struct {
	fd   int
	exec *command.Executor
	log  *logrus.Entry

	mu sync.Mutex

	readBuf            [bufSize]byte
	readBegin, readEnd int

	parser     protocol.Parser
	pendingCmd *protocol.Command
	argRemains int
	argument   []byte

	// responses holds the queued reply strings not yet fully written.
	// writeOffset is how many bytes of responses[0] a prior partial write
	// already delivered. Writes go straight off these slices via writev
	// rather than staging into a fixed buffer, so a reply of any size
	// (a get of a near-capacity value, for instance) never stalls waiting
	// to fit whole into a bounded buffer.
	responses   []string
	writeOffset int

	alive     bool
	wantWrite bool

	// Handle and PendingEvent are only meaningful in single-threaded
	// coroutine mode; the acceptor sets PendingEvent then calls
	// engine.Unblock(Handle) instead of invoking DoRead/DoWrite directly.
	Handle       coroutine.Handle
	PendingEvent EventType
}

// New wraps fd (already accept4'd and set non-blocking by the caller) in a
// fresh Connection bound to exec.
func New(fd int, exec *command.Executor, log *logrus.Entry) *Connection {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Connection{fd: fd, exec: exec, log: log.WithField("fd", fd)}
}

// FD returns the underlying file descriptor.
func (c *Connection) FD() int { return c.fd }

// Start resets buffer cursors and marks the connection alive.
func (c *Connection) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
	c.readBegin, c.readEnd = 0, 0
	c.responses = nil
	c.writeOffset = 0
}

// Alive reports whether the connection is still eligible for epoll events.
func (c *Connection) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// WantWrite reports whether the connection has data queued to write.
func (c *Connection) WantWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wantWrite
}

// Close marks the connection dead and releases its socket.
func (c *Connection) Close() {
	c.mu.Lock()
	c.alive = false
	fd := c.fd
	c.mu.Unlock()
	c.log.Debug("connection closed")
	_ = unix.Close(fd)
}

// OnError marks the connection dead following an EPOLLERR/EPOLLHUP event.
func (c *Connection) OnError() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
	c.log.Warn("connection error")
}

// OnClose marks the connection dead following an EPOLLRDHUP event.
func (c *Connection) OnClose() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
}

func (c *Connection) enqueue(reply string) {
	if reply == "" {
		return
	}
	c.responses = append(c.responses, reply+"\r\n")
	c.wantWrite = true
}

// DoRead issues one read from the socket into readBuf, parses and executes as many
// complete commands as the buffered bytes allow, then compacts the
// buffer. A zero or negative read (other than EAGAIN) marks the
// connection dead.
func (c *Connection) DoRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := unix.Read(c.fd, c.readBuf[c.readEnd:])
	if n <= 0 {
		if err == unix.EAGAIN {
			return
		}
		c.alive = false
		return
	}
	c.readEnd += n

	for c.readBegin < c.readEnd {
		if c.pendingCmd == nil {
			consumed, complete, perr := c.parser.Parse(c.readBuf[c.readBegin:c.readEnd])
			c.readBegin += consumed
			if perr != nil {
				c.enqueue("ERROR")
				c.parser.Reset()
				break
			}
			if consumed == 0 {
				break
			}
			if !complete {
				continue
			}

			var argRemains int
			cmd, berr := c.parser.Build(&argRemains)
			c.parser.Reset()
			if berr != nil {
				c.enqueue("ERROR")
				continue
			}
			c.pendingCmd = &cmd
			c.argRemains = argRemains
		}

		if c.pendingCmd != nil && c.argRemains > 0 {
			toRead := c.argRemains
			if avail := c.readEnd - c.readBegin; avail < toRead {
				toRead = avail
			}
			c.argument = append(c.argument, c.readBuf[c.readBegin:c.readBegin+toRead]...)
			c.argRemains -= toRead
			c.readBegin += toRead
		}

		if c.pendingCmd != nil && c.argRemains == 0 {
			arg := c.argument
			if len(arg) >= 2 {
				arg = arg[:len(arg)-2]
			}
			reply, closeConn := c.exec.Execute(*c.pendingCmd, arg)
			if !c.pendingCmd.NoReply {
				c.enqueue(reply)
			}
			if closeConn {
				c.alive = false
			}
			c.pendingCmd = nil
			c.argument = nil
		}
	}

	if c.readBegin == c.readEnd {
		c.readBegin, c.readEnd = 0, 0
	} else if c.readEnd == bufSize {
		copy(c.readBuf[:], c.readBuf[c.readBegin:c.readEnd])
		c.readEnd -= c.readBegin
		c.readBegin = 0
	}
}

// DoWrite issues a single scatter/gather writev over the queued response
// slices, starting writeOffset bytes into the first one if a prior partial
// write landed mid-response. A zero or negative write (other than EAGAIN)
// marks the connection dead. The write-readiness request clears once the
// queue drains.
func (c *Connection) DoWrite() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.responses) == 0 {
		c.wantWrite = false
		return
	}

	iovs := make([][]byte, len(c.responses))
	for i, r := range c.responses {
		b := []byte(r)
		if i == 0 {
			b = b[c.writeOffset:]
		}
		iovs[i] = b
	}

	n, err := unix.Writev(c.fd, iovs)
	if n <= 0 {
		if err == unix.EAGAIN {
			return
		}
		c.alive = false
		return
	}

	for n > 0 && len(c.responses) > 0 {
		remaining := len(c.responses[0]) - c.writeOffset
		if n < remaining {
			c.writeOffset += n
			n = 0
		} else {
			n -= remaining
			c.responses = c.responses[1:]
			c.writeOffset = 0
		}
	}

	if len(c.responses) == 0 {
		c.wantWrite = false
	}
}

// Run is the coroutine-mode connection body: it blocks itself until the
// acceptor sets PendingEvent and unblocks it, dispatches on the event, and
// loops until a terminal event (EventOnClose/EventOnError) returns.
func (c *Connection) Run(engine *coroutine.Engine) {
	c.Start()
	for {
		engine.Block(0)
		switch c.PendingEvent {
		case EventClose:
			c.Close()
		case EventDoRead:
			c.DoRead()
		case EventDoWrite:
			c.DoWrite()
		case EventOnClose:
			c.OnClose()
			return
		case EventOnError:
			c.OnError()
			return
		}
	}
}
