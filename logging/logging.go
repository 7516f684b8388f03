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

// Package logging builds the structured, leveled logger the rest of the
// server uses, trimmed from the parent module's logger package down to
// the pieces memkv exercises: level control shared between the CLI's
// --log-level flag and the wire verbosity command, a text formatter with
// full timestamps, and output to stdout. The gorm/hclog/syslog/file-rotation
// adapters that package also offers have no component in this server's
// domain to drive them.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger with a level that can be changed at
// runtime by both the CLI and the wire verbosity command.
type Logger struct {
	mu  sync.Mutex
	log *logrus.Logger
}

// New builds a Logger at the given level (parsed with logrus.ParseLevel;
// an invalid level falls back to Info). Output goes to stdout with full
// timestamps, matching the parent module's default text formatter.
func New(level string) *Logger {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetLevel(lvl)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Logger{log: base}
}

// Entry returns a field-less entry suitable as a component's base logger.
func (l *Logger) Entry() *logrus.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return logrus.NewEntry(l.log)
}

// SetLevel implements command.LevelSetter, letting the wire verbosity
// command and --log-level drive the same underlying logger.
func (l *Logger) SetLevel(level logrus.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.SetLevel(level)
}

// Level returns the logger's current level.
func (l *Logger) Level() logrus.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.log.GetLevel()
}
