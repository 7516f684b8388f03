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

// Package lru implements a fixed-byte-capacity, most-recently-used-ordered
// key/value store with O(1) amortised Get/Put/Set/Delete and tail eviction.
//
// Unlike a map-of-pointers implementation, nodes live in a slab ([]node)
// addressed by slot index rather than by pointer; prev/next/the index both
// reference slots by index. This follows the arena-plus-dense-indices
// alternative noted for the original pointer-chasing, intrusive-list design:
// it keeps the same O(1) guarantees without manual prev/next pointer
// bookkeeping spread across heap-allocated nodes.
//
// The store has no internal locking: it is single-writer, exactly as
// specified. Callers sharing a Store across goroutines must serialise their
// own access (see command.Executor, which holds its storeMu around every
// store call).
package lru

import (
	"github.com/sabouaram/memkv/apperr"
)

const nilSlot = -1

type node struct {
	key   string
	value string
	prev  int
	next  int
	used  bool // false marks a freed slot on the free list
}

// Store is a capacity-bounded, MRU-ordered key/value store.
type Store struct {
	nodes []node
	free  []int
	index map[string]int

	head int // MRU
	tail int // LRU

	maxSize  int
	currSize int

	stats Stats
}

// Stats are monotonic counters a caller (typically the stats command) can
// read after the fact; they are not reset by any Store operation.
type Stats struct {
	Gets      uint64
	GetHits   uint64
	GetMisses uint64
	Sets      uint64
	Evictions uint64
}

// New returns an empty Store bounded to maxSize total bytes of key+value
// data. A maxSize of 0 admits only an entry whose key and value are both
// empty.
func New(maxSize int) *Store {
	return &Store{
		index:   make(map[string]int),
		head:    nilSlot,
		tail:    nilSlot,
		maxSize: maxSize,
	}
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	return len(s.index)
}

// Size returns the current total byte footprint (sum of len(k)+len(v)).
func (s *Store) Size() int {
	return s.currSize
}

// MaxSize returns the configured capacity.
func (s *Store) MaxSize() int {
	return s.maxSize
}

// Stats returns a snapshot of the running counters.
func (s *Store) Stats() Stats {
	return s.stats
}

func entrySize(key, value string) int {
	return len(key) + len(value)
}

func (s *Store) fits(key, value string) bool {
	return entrySize(key, value) <= s.maxSize
}

// allocSlot returns a fresh or recycled slot index for (key, value).
func (s *Store) allocSlot(key, value string) int {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		s.nodes[idx] = node{key: key, value: value, prev: nilSlot, next: nilSlot, used: true}
		return idx
	}
	s.nodes = append(s.nodes, node{key: key, value: value, prev: nilSlot, next: nilSlot, used: true})
	return len(s.nodes) - 1
}

func (s *Store) freeSlot(idx int) {
	s.nodes[idx].used = false
	s.nodes[idx].key = ""
	s.nodes[idx].value = ""
	s.free = append(s.free, idx)
}

// unlink removes idx from the MRU..LRU chain without touching the index or
// freeing the slot.
func (s *Store) unlink(idx int) {
	n := s.nodes[idx]
	if n.prev != nilSlot {
		s.nodes[n.prev].next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nilSlot {
		s.nodes[n.next].prev = n.prev
	} else {
		s.tail = n.prev
	}
}

// linkAtHead inserts idx as the new MRU head.
func (s *Store) linkAtHead(idx int) {
	s.nodes[idx].prev = nilSlot
	s.nodes[idx].next = s.head
	if s.head != nilSlot {
		s.nodes[s.head].prev = idx
	}
	s.head = idx
	if s.tail == nilSlot {
		s.tail = idx
	}
}

func (s *Store) promote(idx int) {
	if s.head == idx {
		return
	}
	s.unlink(idx)
	s.linkAtHead(idx)
}

// evictTail removes the current LRU tail. Caller must ensure tail != nilSlot.
func (s *Store) evictTail() {
	idx := s.tail
	n := s.nodes[idx]
	s.currSize -= entrySize(n.key, n.value)
	delete(s.index, n.key)
	s.unlink(idx)
	s.freeSlot(idx)
	s.stats.Evictions++
}

// makeRoom evicts LRU-tail entries until `need` additional bytes fit,
// never evicting protect (pass nilSlot when there is nothing to protect).
func (s *Store) makeRoom(need int, protect int) {
	for s.currSize+need > s.maxSize {
		if s.tail == nilSlot || s.tail == protect {
			return
		}
		s.evictTail()
	}
}

func (s *Store) insert(key, value string) {
	s.makeRoom(entrySize(key, value), nilSlot)
	idx := s.allocSlot(key, value)
	s.linkAtHead(idx)
	s.index[key] = idx
	s.currSize += entrySize(key, value)
}

// updateValue promotes idx to MRU head, then replaces its value, evicting
// other tail entries if needed to make room. idx itself is never evicted:
// it was just promoted to the head, so makeRoom's tail scan cannot reach it
// until every other entry is gone.
func (s *Store) updateValue(idx int, value string) {
	s.promote(idx)
	key := s.nodes[idx].key
	s.currSize -= entrySize(key, s.nodes[idx].value)
	s.makeRoom(len(key)+len(value), idx)
	s.currSize += len(key) + len(value)
	s.nodes[idx].value = value
}

// Put inserts a new key or updates an existing one (equivalent to Set on a
// hit), promoting it to the MRU head either way.
func (s *Store) Put(key, value string) apperr.Error {
	if !s.fits(key, value) {
		return apperr.CodeOversizedEntry.Error()
	}
	s.stats.Sets++
	if idx, ok := s.index[key]; ok {
		s.updateValue(idx, value)
		return nil
	}
	s.insert(key, value)
	return nil
}

// PutIfAbsent inserts only if key is absent. inserted reports whether the
// insert happened.
func (s *Store) PutIfAbsent(key, value string) (inserted bool, err apperr.Error) {
	if !s.fits(key, value) {
		return false, apperr.CodeOversizedEntry.Error()
	}
	if _, ok := s.index[key]; ok {
		return false, nil
	}
	s.insert(key, value)
	s.stats.Sets++
	return true, nil
}

// Set updates an existing key's value, failing CodeNotFound if absent.
func (s *Store) Set(key, value string) apperr.Error {
	if !s.fits(key, value) {
		return apperr.CodeOversizedEntry.Error()
	}
	idx, ok := s.index[key]
	if !ok {
		return apperr.CodeNotFound.Error()
	}
	s.updateValue(idx, value)
	s.stats.Sets++
	return nil
}

// Delete removes key, failing CodeNotFound if absent. Does not promote.
func (s *Store) Delete(key string) apperr.Error {
	idx, ok := s.index[key]
	if !ok {
		return apperr.CodeNotFound.Error()
	}
	n := s.nodes[idx]
	s.currSize -= entrySize(n.key, n.value)
	delete(s.index, key)
	s.unlink(idx)
	s.freeSlot(idx)
	return nil
}

// Get reads the current value for key and promotes it to the MRU head.
func (s *Store) Get(key string) (string, apperr.Error) {
	s.stats.Gets++
	idx, ok := s.index[key]
	if !ok {
		s.stats.GetMisses++
		return "", apperr.CodeNotFound.Error()
	}
	s.stats.GetHits++
	s.promote(idx)
	return s.nodes[idx].value, nil
}

// Flush clears the store immediately.
func (s *Store) Flush() {
	s.nodes = nil
	s.free = nil
	s.index = make(map[string]int)
	s.head = nilSlot
	s.tail = nilSlot
	s.currSize = 0
}

// Walk iterates keys from MRU to LRU, stopping early if fct returns false.
// Intended for diagnostics/tests; not on any hot path.
func (s *Store) Walk(fct func(key, value string) bool) {
	for idx := s.head; idx != nilSlot; idx = s.nodes[idx].next {
		if !fct(s.nodes[idx].key, s.nodes[idx].value) {
			return
		}
	}
}
