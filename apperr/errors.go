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

package apperr

import (
	"fmt"
	"runtime"
	"strings"
)

// Error extends the standard error with a Code and an optional parent chain.
type Error interface {
	error

	// Code returns the error's own code.
	Code() Code
	// Is reports whether the error, or any of its parents, carries code.
	Is(code Code) bool
	// Unwrap exposes the parent chain to errors.Is/errors.As.
	Unwrap() []error
}

type ers struct {
	code   Code
	msg    string
	parent []error
	frame  runtime.Frame
}

func callerFrame(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	if runtime.Callers(skip, pc) == 0 {
		return runtime.Frame{}
	}
	frames := runtime.CallersFrames(pc)
	f, _ := frames.Next()
	return f
}

func newError(code Code, msg string, parents ...error) Error {
	p := make([]error, 0, len(parents))
	for _, e := range parents {
		if e != nil {
			p = append(p, e)
		}
	}
	return &ers{code: code, msg: msg, parent: p, frame: callerFrame(4)}
}

func newErrorf(code Code, format string, args ...interface{}) Error {
	return &ers{code: code, msg: fmt.Sprintf(format, args...), frame: callerFrame(4)}
}

// New builds an Error carrying code with a custom message, wrapping any
// non-nil parents. Code.Error builds the same with the code's default
// message.
func New(code Code, msg string, parents ...error) Error {
	return newError(code, msg, parents...)
}

func (e *ers) Error() string {
	if len(e.parent) == 0 {
		return e.msg
	}

	parts := make([]string, 0, len(e.parent)+1)
	parts = append(parts, e.msg)
	for _, p := range e.parent {
		parts = append(parts, p.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ers) Code() Code {
	return e.code
}

func (e *ers) Is(code Code) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.parent {
		if ap, ok := p.(Error); ok && ap.Is(code) {
			return true
		}
	}
	return false
}

func (e *ers) Unwrap() []error {
	return e.parent
}

// Frame returns the file:line where the error was constructed, mirroring
// the parent module's caller-trace capture (trimmed to a single frame).
func (e *ers) Frame() runtime.Frame {
	return e.frame
}
