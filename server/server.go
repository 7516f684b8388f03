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

// Package server implements the epoll-driven acceptor shared by all three
// deployment modes (single-threaded non-blocking, multi-threaded
// non-blocking, single-threaded coroutine). Readiness notification is
// Linux epoll via golang.org/x/sys/unix; the three modes differ only in
// how a ready connection's DoRead/DoWrite gets invoked once the acceptor
// observes it.
package server

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/memkv/apperr"
	"github.com/sabouaram/memkv/command"
	"github.com/sabouaram/memkv/conn"
	"github.com/sabouaram/memkv/coroutine"
	"github.com/sabouaram/memkv/pool"
)

// Mode selects which of the three deployment shapes Serve runs.
type Mode string

const (
	ModeSTNonblocking Mode = "st-nonblocking"
	ModeMTNonblocking Mode = "mt-nonblocking"
	ModeSTCoroutine   Mode = "st-coroutine"
)

const maxEpollEvents = 256

// Config bundles everything Serve needs beyond the listen address.
type Config struct {
	Mode Mode
	Pool pool.Config // only consulted for ModeMTNonblocking
}

// Server owns the listen socket, the epoll descriptor, and the live
// connection table. It is built for exactly one Serve call.
type Server struct {
	cfg  Config
	exec *command.Executor
	log  *logrus.Entry

	listenFD int
	epollFD  int
	shutdown int // eventfd used to wake epoll_wait for a clean stop

	mu    sync.Mutex
	conns map[int]*conn.Connection

	workers *pool.Pool
	engine  *coroutine.Engine
}

// New builds a Server bound to listenFD (already bound and listening,
// non-blocking) and exec.
func New(listenFD int, exec *command.Executor, cfg Config, log *logrus.Entry) (*Server, apperr.Error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, apperr.CodeAcceptorFatal.Errorf("epoll_create1: %v", err)
	}

	sfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, apperr.CodeAcceptorFatal.Errorf("eventfd: %v", err)
	}

	s := &Server{
		cfg:      cfg,
		exec:     exec,
		log:      log,
		listenFD: listenFD,
		epollFD:  epfd,
		shutdown: sfd,
		conns:    make(map[int]*conn.Connection),
	}

	if cfg.Mode == ModeMTNonblocking {
		s.workers = pool.New(cfg.Pool, log.WithField("component", "pool"), nil)
	}
	if cfg.Mode == ModeSTCoroutine {
		s.engine = coroutine.New()
	}

	if err := s.epollAdd(listenFD, unix.EPOLLIN); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(sfd)
		return nil, apperr.CodeAcceptorFatal.Errorf("register listen socket: %v", err)
	}
	if err := s.epollAdd(sfd, unix.EPOLLIN); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(sfd)
		return nil, apperr.CodeAcceptorFatal.Errorf("register shutdown eventfd: %v", err)
	}

	return s, nil
}

func (s *Server) epollAdd(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (s *Server) epollMod(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (s *Server) epollDel(fd int) error {
	return unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
}

// Stop requests a clean shutdown by writing to the eventfd; Serve returns
// once it observes the event and drains.
func (s *Server) Stop() {
	one := make([]byte, 8)
	one[0] = 1
	_, _ = unix.Write(s.shutdown, one)
	if s.workers != nil {
		s.workers.Stop(true)
	}
}

// Serve runs the acceptor loop until Stop is called or epoll_wait fails
// fatally. It closes the listen socket before returning.
func (s *Server) Serve() apperr.Error {
	if s.workers != nil {
		s.workers.Start()
	}

	defer unix.Close(s.listenFD)
	defer unix.Close(s.epollFD)
	defer unix.Close(s.shutdown)

	events := make([]unix.EpollEvent, maxEpollEvents)

	for {
		n, err := unix.EpollWait(s.epollFD, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return apperr.CodeAcceptorFatal.Errorf("epoll_wait: %v", err)
		}

		running := true
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case fd == int(s.shutdown):
				running = false
			case fd == s.listenFD:
				s.acceptLoop()
			default:
				s.dispatch(fd, events[i].Events)
			}
		}

		if s.cfg.Mode == ModeSTCoroutine {
			s.engine.RunAlive()
		}

		s.reconcile()

		if !running {
			break
		}
	}

	s.drain()
	return nil
}

// acceptLoop accepts every pending connection until accept4 returns
// EAGAIN, registering each with the epoll set.
func (s *Server) acceptLoop() {
	for {
		fd, _, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return
		}
		s.onNewConnection(fd)
	}
}

func (s *Server) onNewConnection(fd int) {
	c := conn.New(fd, s.exec, s.log)
	c.Start()

	s.mu.Lock()
	s.conns[fd] = c
	s.mu.Unlock()

	if err := s.epollAdd(fd, unix.EPOLLIN|unix.EPOLLRDHUP); err != nil {
		s.log.WithError(err).Warn("epoll_ctl add failed, dropping connection")
		c.Close()
		s.mu.Lock()
		delete(s.conns, fd)
		s.mu.Unlock()
		return
	}

	if s.cfg.Mode == ModeSTCoroutine {
		h := s.engine.Run(func(h coroutine.Handle) { c.Run(s.engine) })
		c.Handle = h
	}
}

// dispatch routes one ready fd's epoll bits to the owning connection,
// per mode.
func (s *Server) dispatch(fd int, events uint32) {
	s.mu.Lock()
	c, ok := s.conns[fd]
	s.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case events&(unix.EPOLLERR|unix.EPOLLHUP) != 0:
		s.deliver(c, conn.EventOnError)
	case events&unix.EPOLLRDHUP != 0:
		s.deliver(c, conn.EventOnClose)
	default:
		if events&unix.EPOLLIN != 0 {
			s.deliver(c, conn.EventDoRead)
		}
		if events&unix.EPOLLOUT != 0 {
			s.deliver(c, conn.EventDoWrite)
		}
	}
}

// deliver runs a single connection event according to the server mode:
// inline for ST non-blocking, on a pool worker (serialised by the
// connection's own mutex) for MT non-blocking, or by setting the pending
// event and unblocking the owning coroutine for ST coroutine.
func (s *Server) deliver(c *conn.Connection, ev conn.EventType) {
	run := func() {
		switch ev {
		case conn.EventDoRead:
			c.DoRead()
		case conn.EventDoWrite:
			c.DoWrite()
		case conn.EventOnClose:
			c.OnClose()
		case conn.EventOnError:
			c.OnError()
		}
	}

	switch s.cfg.Mode {
	case ModeMTNonblocking:
		if !s.workers.Execute(run) {
			s.log.Warn("worker pool saturated, dropping connection event")
		}
	case ModeSTCoroutine:
		c.PendingEvent = ev
		s.engine.Unblock(c.Handle)
	default:
		run()
	}
}

// reconcile updates epoll registration for connections whose readiness
// changed and removes dead connections from the table.
func (s *Server) reconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for fd, c := range s.conns {
		if !c.Alive() {
			_ = s.epollDel(fd)
			delete(s.conns, fd)
			continue
		}

		events := uint32(unix.EPOLLIN | unix.EPOLLRDHUP)
		if c.WantWrite() {
			events |= unix.EPOLLOUT
		}
		_ = s.epollMod(fd, events)
	}
}

func (s *Server) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fd, c := range s.conns {
		c.Close()
		delete(s.conns, fd)
	}
}

// Connections returns the number of currently tracked connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Listen builds a bound, listening, non-blocking IPv4 TCP socket on port
// across all local addresses, suitable for passing to New.
func Listen(port int) (int, apperr.Error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, apperr.CodeAcceptorFatal.Errorf("socket: %v", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, apperr.CodeAcceptorFatal.Errorf("setsockopt SO_REUSEADDR: %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		_ = unix.Close(fd)
		return -1, apperr.CodeAcceptorFatal.Errorf("bind :%d: %v", port, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		_ = unix.Close(fd)
		return -1, apperr.CodeAcceptorFatal.Errorf("listen: %v", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, apperr.CodeAcceptorFatal.Errorf("set nonblock: %v", err)
	}
	return fd, nil
}
