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

package locker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockerLock(t *testing.T) {
	l := New()
	l.Lock("board-a")
	e := l.locks["board-a"]
	assert.Equal(t, int32(0), e.count())

	chDone := make(chan struct{})
	go func() {
		l.Lock("board-a")
		close(chDone)
	}()

	chWaiting := make(chan struct{})
	go func() {
		for range time.Tick(time.Millisecond) {
			if e.count() == 1 {
				close(chWaiting)
				break
			}
		}
	}()

	select {
	case <-chWaiting:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the waiter count to rise")
	}

	select {
	case <-chDone:
		t.Fatal("lock should not have returned while it was still held")
	default:
	}

	assert.NoError(t, l.Unlock("board-a"))

	select {
	case <-chDone:
	case <-time.After(3 * time.Second):
		t.Fatal("second lock should have completed")
	}
	assert.Equal(t, int32(0), e.count())
}

func TestLockerUnlock(t *testing.T) {
	l := New()

	assert.ErrorIs(t, l.Unlock("never-locked"), ErrNoSuchLock)

	l.Lock("board-a")
	assert.NoError(t, l.Unlock("board-a"))

	chDone := make(chan struct{})
	go func() {
		l.Lock("board-a")
		close(chDone)
	}()

	select {
	case <-chDone:
	case <-time.After(3 * time.Second):
		t.Fatal("lock should not be blocked")
	}
}

func TestLockerTryLock(t *testing.T) {
	l := New()

	for i := 0; i < 2; i++ {
		assert.True(t, l.TryLock("board-a"))
		assert.False(t, l.TryLock("board-a"))
		assert.NoError(t, l.Unlock("board-a"))
	}

	// Names are independent.
	assert.True(t, l.TryLock("board-a"))
	assert.True(t, l.TryLock("board-b"))
	assert.NoError(t, l.Unlock("board-a"))
	assert.NoError(t, l.Unlock("board-b"))
}

func TestLockerConcurrency(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock("board-a")
			assert.NoError(t, l.Unlock("board-a"))
		}()
	}

	chDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(chDone)
	}()

	select {
	case <-chDone:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for locks to complete")
	}

	// Everything unlocked, so the entry must have been cleaned up.
	_, exists := l.locks["board-a"]
	assert.False(t, exists)
}
