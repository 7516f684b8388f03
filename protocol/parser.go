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

// Package protocol recognizes the memcached text wire grammar. There is no
// third-party library in reach of this domain for line-oriented key/value
// protocol parsing, and hand-rolling a byte scanner is exactly how every
// text-protocol connection in the retrieved corpus does it, so this package
// is built on the standard library alone.
package protocol

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/sabouaram/memkv/apperr"
)

// Command is the parsed representation of one wire request.
type Command struct {
	Name    string
	Keys    []string
	Flags   uint32
	Exptime int64
	Bytes   int
	Level   int
	NoReply bool
}

var storageCommands = map[string]bool{
	"set": true, "add": true, "replace": true, "append": true, "prepend": true,
}

// IsStorage reports whether cmd carries a binary argument block.
func (c Command) IsStorage() bool { return storageCommands[c.Name] }

// Parser recognizes one header line at a time. It is not safe for
// concurrent use; each Connection owns its own Parser.
type Parser struct {
	buf []byte
}

// Reset clears parser state for the next command.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

// Parse feeds raw bytes, advancing internal state. It returns how many
// bytes were consumed from data and whether a full header line is now
// buffered and ready for Build. A return of consumed == 0 means the
// caller must supply more input before Parse can make progress.
func (p *Parser) Parse(data []byte) (consumed int, complete bool, err error) {
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		p.buf = append(p.buf, data[:idx+1]...)
		return idx + 1, true, nil
	}
	p.buf = append(p.buf, data...)
	return len(data), false, nil
}

// Build tokenizes the buffered header line into a Command. argRemains
// reports how many additional payload bytes (the declared value plus its
// trailing CRLF) the connection must still read before the command can
// execute; 0 for argumentless commands.
func (p *Parser) Build(argRemains *int) (Command, error) {
	line := strings.TrimRight(string(p.buf), "\r\n")
	fields := strings.Fields(line)
	*argRemains = 0

	if len(fields) == 0 {
		return Command{}, apperr.CodeProtocolError.Errorf("empty command line")
	}

	cmd := Command{Name: strings.ToLower(fields[0])}

	switch cmd.Name {
	case "get", "gets":
		if len(fields) < 2 {
			return Command{}, apperr.CodeProtocolError.Errorf("%s requires at least one key", cmd.Name)
		}
		cmd.Keys = fields[1:]

	case "set", "add", "replace", "append", "prepend":
		if len(fields) < 5 {
			return Command{}, apperr.CodeProtocolError.Errorf("%s requires <key> <flags> <exptime> <bytes>", cmd.Name)
		}
		flags, e1 := strconv.ParseUint(fields[2], 10, 32)
		exptime, e2 := strconv.ParseInt(fields[3], 10, 64)
		nbytes, e3 := strconv.Atoi(fields[4])
		if e1 != nil || e2 != nil || e3 != nil || nbytes < 0 {
			return Command{}, apperr.CodeProtocolError.Errorf("%s has malformed numeric arguments", cmd.Name)
		}
		cmd.Keys = fields[1:2]
		cmd.Flags = uint32(flags)
		cmd.Exptime = exptime
		cmd.Bytes = nbytes
		cmd.NoReply = len(fields) > 5 && fields[5] == "noreply"
		*argRemains = nbytes + 2

	case "delete":
		if len(fields) < 2 {
			return Command{}, apperr.CodeProtocolError.Errorf("delete requires a key")
		}
		cmd.Keys = fields[1:2]
		cmd.NoReply = len(fields) > 2 && fields[2] == "noreply"

	case "verbosity":
		if len(fields) < 2 {
			return Command{}, apperr.CodeProtocolError.Errorf("verbosity requires a level")
		}
		lvl, e := strconv.Atoi(fields[1])
		if e != nil {
			return Command{}, apperr.CodeProtocolError.Errorf("verbosity level must be numeric")
		}
		cmd.Level = lvl
		cmd.NoReply = len(fields) > 2 && fields[2] == "noreply"

	case "stats", "flush_all", "version", "quit":
		// argumentless

	default:
		return Command{}, apperr.CodeProtocolError.Errorf("unknown command %q", fields[0])
	}

	return cmd, nil
}
