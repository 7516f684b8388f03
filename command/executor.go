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

// Package command turns a parsed protocol.Command plus its argument bytes
// into a wire reply string, against a shared lru.Store. Each reply is
// returned without its trailing CRLF; the connection layer appends it
// before queuing the response for transmission.
package command

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sabouaram/memkv/apperr"
	"github.com/sabouaram/memkv/lru"
	"github.com/sabouaram/memkv/protocol"
)

// Recorder observes executed commands for the metrics package to count.
// Executor works with a nil Recorder.
type Recorder interface {
	ObserveCommand(name string)
}

// LevelSetter adjusts the running logger's level, backing the verbosity
// command and the --log-level flag from the same switch.
type LevelSetter interface {
	SetLevel(level logrus.Level)
}

// Executor runs commands against store. The store is single-writer and has
// no internal locking of its own; a connection's own mutex only serialises
// that one connection's buffers, not the store, which every connection in
// mt-nonblocking mode shares across different pool workers. storeMu is the
// storage-level lock spec.md §5/§9 requires the port to add: every Execute
// call holds it for the duration of its store access, so concurrent
// connections never race on the shared map/slab.
type Executor struct {
	store   *lru.Store
	log     *logrus.Entry
	version string
	levels  LevelSetter
	rec     Recorder

	storeMu sync.Mutex

	mu    sync.Mutex
	cas   map[string]uint64
	seq   uint64
	flags map[string]uint32
}

// New builds an Executor over store. levels and rec may be nil.
func New(store *lru.Store, log *logrus.Entry, version string, levels LevelSetter, rec Recorder) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		store:   store,
		log:     log,
		version: version,
		levels:  levels,
		rec:     rec,
		cas:     make(map[string]uint64),
		flags:   make(map[string]uint32),
	}
}

// Execute runs cmd, returning the reply text (sans CRLF) and whether the
// connection should close once the reply (if any) has been sent.
func (e *Executor) Execute(cmd protocol.Command, argument []byte) (reply string, closeConn bool) {
	if e.rec != nil {
		e.rec.ObserveCommand(cmd.Name)
	}

	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	switch cmd.Name {
	case "get":
		return e.doGet(cmd.Keys, false), false
	case "gets":
		return e.doGet(cmd.Keys, true), false
	case "set":
		return e.doSet(cmd.Keys[0], string(argument), cmd.Flags), false
	case "add":
		return e.doAdd(cmd.Keys[0], string(argument), cmd.Flags), false
	case "replace":
		return e.doReplace(cmd.Keys[0], string(argument), cmd.Flags), false
	case "append":
		return e.doAppendPrepend(cmd.Keys[0], string(argument), true), false
	case "prepend":
		return e.doAppendPrepend(cmd.Keys[0], string(argument), false), false
	case "delete":
		return e.doDelete(cmd.Keys[0]), false
	case "stats":
		return e.doStats(), false
	case "flush_all":
		e.store.Flush()
		e.mu.Lock()
		e.cas = make(map[string]uint64)
		e.flags = make(map[string]uint32)
		e.mu.Unlock()
		return "OK", false
	case "version":
		return "VERSION " + e.version, false
	case "verbosity":
		if e.levels != nil {
			e.levels.SetLevel(logrus.Level(cmd.Level))
		}
		return "OK", false
	case "quit":
		return "", true
	default:
		return "ERROR", false
	}
}

func (e *Executor) doGet(keys []string, withCas bool) string {
	var b strings.Builder
	for _, k := range keys {
		v, err := e.store.Get(k)
		if err != nil {
			continue
		}
		if withCas {
			fmt.Fprintf(&b, "VALUE %s %d %d %d\r\n%s\r\n", k, e.flagsFor(k), len(v), e.casFor(k), v)
		} else {
			fmt.Fprintf(&b, "VALUE %s %d %d\r\n%s\r\n", k, e.flagsFor(k), len(v), v)
		}
	}
	b.WriteString("END")
	return b.String()
}

func (e *Executor) casFor(key string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cas[key]
}

func (e *Executor) flagsFor(key string) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags[key]
}

func (e *Executor) bumpCas(key string, flags uint32) {
	e.mu.Lock()
	e.seq++
	e.cas[key] = e.seq
	e.flags[key] = flags
	e.mu.Unlock()
}

func (e *Executor) forget(key string) {
	e.mu.Lock()
	delete(e.cas, key)
	delete(e.flags, key)
	e.mu.Unlock()
}

func (e *Executor) doSet(key, value string, flags uint32) string {
	if err := e.store.Put(key, value); err != nil {
		return replyFor(err)
	}
	e.bumpCas(key, flags)
	return "STORED"
}

func (e *Executor) doAdd(key, value string, flags uint32) string {
	inserted, err := e.store.PutIfAbsent(key, value)
	if err != nil {
		return replyFor(err)
	}
	if !inserted {
		return "NOT_STORED"
	}
	e.bumpCas(key, flags)
	return "STORED"
}

func (e *Executor) doReplace(key, value string, flags uint32) string {
	if err := e.store.Set(key, value); err != nil {
		return replyFor(err)
	}
	e.bumpCas(key, flags)
	return "STORED"
}

// doAppendPrepend concatenates onto the existing value without altering its
// stored flags, matching memcached's own append/prepend semantics.
func (e *Executor) doAppendPrepend(key, value string, append_ bool) string {
	current, err := e.store.Get(key)
	if err != nil {
		return "NOT_STORED"
	}
	merged := current + value
	if !append_ {
		merged = value + current
	}
	if err := e.store.Set(key, merged); err != nil {
		return replyFor(err)
	}
	e.mu.Lock()
	e.seq++
	e.cas[key] = e.seq
	e.mu.Unlock()
	return "STORED"
}

func (e *Executor) doDelete(key string) string {
	if err := e.store.Delete(key); err != nil {
		return replyFor(err)
	}
	e.forget(key)
	return "DELETED"
}

func (e *Executor) doStats() string {
	stats := e.store.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "STAT curr_items %d\r\n", e.store.Len())
	fmt.Fprintf(&b, "STAT bytes %d\r\n", e.store.Size())
	fmt.Fprintf(&b, "STAT cmd_get %d\r\n", stats.Gets)
	fmt.Fprintf(&b, "STAT cmd_set %d\r\n", stats.Sets)
	fmt.Fprintf(&b, "STAT get_hits %d\r\n", stats.GetHits)
	fmt.Fprintf(&b, "STAT get_misses %d\r\n", stats.GetMisses)
	fmt.Fprintf(&b, "STAT evictions %d\r\n", stats.Evictions)
	b.WriteString("END")
	return b.String()
}

// replyFor maps a storage apperr.Error onto its wire reply per the error
// taxonomy table: OversizedEntry and AlreadyExists both read as NOT_STORED,
// NotFound as NOT_FOUND, anything else falls back to ERROR.
func replyFor(err apperr.Error) string {
	switch err.Code() {
	case apperr.CodeOversizedEntry, apperr.CodeAlreadyExists:
		return "NOT_STORED"
	case apperr.CodeNotFound:
		return "NOT_FOUND"
	default:
		return "ERROR"
	}
}
