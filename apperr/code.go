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

// Package apperr provides the coded error taxonomy for the store, pool and
// protocol layers. It is a slimmed rendition of the parent module's errors
// package: a numeric Code, a message, and an optional parent chain, without
// the full pool/hierarchy/gin-integration surface that package also offers.
package apperr

import "strconv"

// Code classifies a failure the way the wire protocol and the pool's
// boolean-return contract expect to see it.
type Code uint16

const (
	// CodeNone is the zero value, never returned by this package's
	// constructors.
	CodeNone Code = iota

	// CodeOversizedEntry: len(key)+len(value) > capacity. Wire: NOT_STORED.
	CodeOversizedEntry

	// CodeNotFound: Get/Set/Delete missed. Wire: NOT_FOUND.
	CodeNotFound

	// CodeAlreadyExists: PutIfAbsent hit an existing key. Wire: NOT_STORED.
	CodeAlreadyExists

	// CodeProtocolError: parser failed on malformed input. Wire: ERROR.
	CodeProtocolError

	// CodeSocketFatal: read/write returned <= 0 and not EAGAIN. Connection closes.
	CodeSocketFatal

	// CodePoolSaturated: Execute rejected (not running, or queue full).
	CodePoolSaturated

	// CodePoolTaskFault: a task panicked. Fatal by design; see pool.Pool.
	CodePoolTaskFault

	// CodeAcceptorFatal: epoll_create/ctl/accept failed.
	CodeAcceptorFatal
)

var codeMessage = map[Code]string{
	CodeNone:           "no error",
	CodeOversizedEntry: "entry exceeds store capacity",
	CodeNotFound:       "key not found",
	CodeAlreadyExists:  "key already exists",
	CodeProtocolError:  "malformed protocol input",
	CodeSocketFatal:    "socket closed or in fatal error state",
	CodePoolSaturated:  "worker pool is not accepting tasks",
	CodePoolTaskFault:  "task panicked during execution",
	CodeAcceptorFatal:  "acceptor initialization failed",
}

// Message returns the default human-readable text for the code.
func (c Code) Message() string {
	if m, ok := codeMessage[c]; ok {
		return m
	}
	return "unknown error"
}

// String implements fmt.Stringer.
func (c Code) String() string {
	return strconv.Itoa(int(c))
}

// Error builds a new Error carrying this code, optionally wrapping parents.
func (c Code) Error(parents ...error) Error {
	return newError(c, c.Message(), parents...)
}

// Errorf builds a new Error carrying this code with a formatted message.
func (c Code) Errorf(format string, args ...interface{}) Error {
	return newErrorf(c, format, args...)
}
