package protocol

import (
	"testing"

	"github.com/sabouaram/memkv/apperr"
)

func parseLine(t *testing.T, line string) Command {
	t.Helper()
	var p Parser
	consumed, complete, err := p.Parse([]byte(line))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if consumed != len(line) {
		t.Fatalf("expected to consume %d bytes, got %d", len(line), consumed)
	}
	if !complete {
		t.Fatalf("expected a complete header line")
	}
	var argRemains int
	cmd, err := p.Build(&argRemains)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return cmd
}

func TestParseGetMultiKey(t *testing.T) {
	cmd := parseLine(t, "get a b c\r\n")
	if cmd.Name != "get" {
		t.Fatalf("expected get, got %q", cmd.Name)
	}
	if len(cmd.Keys) != 3 || cmd.Keys[0] != "a" || cmd.Keys[2] != "c" {
		t.Fatalf("unexpected keys: %v", cmd.Keys)
	}
}

func TestParseSetHeaderReportsArgRemains(t *testing.T) {
	var p Parser
	line := "set foo 0 0 5\r\n"
	_, complete, err := p.Parse([]byte(line))
	if err != nil || !complete {
		t.Fatalf("expected complete header, err=%v", err)
	}
	var argRemains int
	cmd, err := p.Build(&argRemains)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "set" || cmd.Bytes != 5 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if argRemains != 7 {
		t.Fatalf("expected argRemains=7 (5 + CRLF), got %d", argRemains)
	}
	if !cmd.IsStorage() {
		t.Fatalf("expected set to be a storage command")
	}
}

func TestParseFeedsAcrossMultipleChunks(t *testing.T) {
	var p Parser
	first := []byte("get fo")
	consumed, complete, err := p.Parse(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(first) || complete {
		t.Fatalf("expected incomplete partial header, consumed=%d complete=%v", consumed, complete)
	}

	second := []byte("o\r\n")
	consumed, complete, err = p.Parse(second)
	if err != nil || !complete || consumed != len(second) {
		t.Fatalf("expected completion on second chunk, consumed=%d complete=%v err=%v", consumed, complete, err)
	}

	var argRemains int
	cmd, err := p.Build(&argRemains)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "get" || len(cmd.Keys) != 1 || cmd.Keys[0] != "foo" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestBuildRejectsUnknownCommand(t *testing.T) {
	cmd, err := func() (Command, error) {
		var p Parser
		p.Parse([]byte("bogus\r\n"))
		var argRemains int
		return p.Build(&argRemains)
	}()
	if err == nil || err.(apperr.Error).Code() != apperr.CodeProtocolError {
		t.Fatalf("expected CodeProtocolError, got cmd=%+v err=%v", cmd, err)
	}
}

func TestResetClearsBufferedLine(t *testing.T) {
	var p Parser
	p.Parse([]byte("get a\r\n"))
	p.Reset()
	consumed, complete, err := p.Parse([]byte("get b\r\n"))
	if err != nil || !complete || consumed != len("get b\r\n") {
		t.Fatalf("unexpected state after reset: consumed=%d complete=%v err=%v", consumed, complete, err)
	}
	var argRemains int
	cmd, err := p.Build(&argRemains)
	if err != nil || cmd.Keys[0] != "b" {
		t.Fatalf("expected fresh command for 'b', got %+v err=%v", cmd, err)
	}
}

func TestParseVerbosityNoReply(t *testing.T) {
	cmd := parseLine(t, "verbosity 2 noreply\r\n")
	if cmd.Level != 2 || !cmd.NoReply {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}
