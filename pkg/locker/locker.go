/*
 * Copyright 2024 The Easel Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * This file was written with reference to moby/locker.
 *   https://github.com/moby/locker
 */

// Package locker provides name-keyed mutexes. A lock is created on first use
// and cleaned up on Unlock once nothing else is waiting for it, so holding a
// lock per board never grows the map beyond the set of active names.
package locker

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoSuchLock is returned when unlocking a name that is not locked.
var ErrNoSuchLock = errors.New("no such lock")

// Locker dispenses mutexes by name.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// entry is one named lock together with the number of routines waiting on
// it. The count keeps Unlock from deleting an entry another routine is about
// to block on.
type entry struct {
	mu      sync.Mutex
	waiters int32
}

func (e *entry) inc() { atomic.AddInt32(&e.waiters, 1) }
func (e *entry) dec() { atomic.AddInt32(&e.waiters, -1) }

func (e *entry) count() int32 {
	return atomic.LoadInt32(&e.waiters)
}

// New creates a new Locker.
func New() *Locker {
	return &Locker{
		locks: make(map[string]*entry),
	}
}

// acquire registers the caller as a waiter of the named lock and returns the
// entry. The caller must dec() once it is done blocking on the entry mutex.
func (l *Locker) acquire(name string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[name]
	if !exists {
		e = &entry{}
		l.locks[name] = e
	}
	e.inc()
	return e
}

// Lock locks the mutex with the given name, creating it if needed.
func (l *Locker) Lock(name string) {
	e := l.acquire(name)

	// Block outside the registry mutex so other names stay independent.
	e.mu.Lock()
	e.dec()
}

// TryLock attempts to lock the mutex with the given name without blocking.
func (l *Locker) TryLock(name string) bool {
	e := l.acquire(name)

	locked := e.mu.TryLock()
	e.dec()
	return locked
}

// Unlock unlocks the mutex with the given name. The entry is removed when no
// other caller is waiting on it.
func (l *Locker) Unlock(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[name]
	if !exists {
		return ErrNoSuchLock
	}

	if e.count() == 0 {
		delete(l.locks, name)
	}
	e.mu.Unlock()
	return nil
}
