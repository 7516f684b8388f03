package conn

import (
	"strconv"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/memkv/command"
	"github.com/sabouaram/memkv/lru"
)

func socketPair(t *testing.T) (serverFD, clientFD int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestDoReadExecutesSetAndQueuesStored(t *testing.T) {
	serverFD, clientFD := socketPair(t)
	exec := command.New(lru.New(1024), nil, "0.1.0", nil, nil)
	c := New(serverFD, exec, nil)
	c.Start()

	if _, err := unix.Write(clientFD, []byte("set foo 0 0 3\r\nbar\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	c.DoRead()

	if !c.Alive() {
		t.Fatalf("expected connection to remain alive")
	}
	if !c.WantWrite() {
		t.Fatalf("expected a response to be queued")
	}
	if len(c.responses) != 1 || c.responses[0] != "STORED\r\n" {
		t.Fatalf("expected STORED queued, got %v", c.responses)
	}
}

func TestDoWriteFlushesQueuedResponses(t *testing.T) {
	serverFD, clientFD := socketPair(t)
	exec := command.New(lru.New(1024), nil, "0.1.0", nil, nil)
	c := New(serverFD, exec, nil)
	c.Start()
	c.enqueue("STORED")

	c.DoWrite()

	buf := make([]byte, 64)
	n, err := unix.Read(clientFD, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "STORED\r\n" {
		t.Fatalf("expected STORED\\r\\n on the wire, got %q", buf[:n])
	}
	if c.WantWrite() {
		t.Fatalf("expected wantWrite to clear once the queue drains")
	}
}

func TestDoReadAcrossTwoPartialWrites(t *testing.T) {
	serverFD, clientFD := socketPair(t)
	exec := command.New(lru.New(1024), nil, "0.1.0", nil, nil)
	c := New(serverFD, exec, nil)
	c.Start()

	unix.Write(clientFD, []byte("get fo"))
	c.DoRead()
	if len(c.responses) != 0 {
		t.Fatalf("expected no response yet from a partial header, got %v", c.responses)
	}

	unix.Write(clientFD, []byte("o\r\n"))
	c.DoRead()
	if len(c.responses) != 1 || c.responses[0] != "END\r\n" {
		t.Fatalf("expected END queued for a miss, got %v", c.responses)
	}
}

func TestDoWriteSendsResponseLargerThanReadBuffer(t *testing.T) {
	serverFD, clientFD := socketPair(t)
	exec := command.New(lru.New(1<<20), nil, "0.1.0", nil, nil)
	c := New(serverFD, exec, nil)
	c.Start()

	big := strings.Repeat("x", bufSize*2)
	msg := "VALUE foo 0 " + strconv.Itoa(len(big)) + "\r\n" + big + "\r\nEND"
	c.enqueue(msg)

	for c.WantWrite() {
		c.DoWrite()
	}

	var out []byte
	buf := make([]byte, 4096)
	for len(out) < len(msg)+len("\r\n") {
		n, err := unix.Read(clientFD, buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		out = append(out, buf[:n]...)
	}
	if !strings.Contains(string(out), big) {
		t.Fatalf("expected the oversized value to be delivered whole")
	}
}

func TestQuitClosesConnectionAfterExecution(t *testing.T) {
	serverFD, clientFD := socketPair(t)
	exec := command.New(lru.New(1024), nil, "0.1.0", nil, nil)
	c := New(serverFD, exec, nil)
	c.Start()

	unix.Write(clientFD, []byte("quit\r\n"))
	c.DoRead()

	if c.Alive() {
		t.Fatalf("expected quit to mark the connection dead")
	}
	if len(c.responses) != 0 {
		t.Fatalf("expected no reply queued for quit, got %v", c.responses)
	}
}
