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
 */

// Package background manages the background goroutines of the backend, such
// as snapshot compaction, so that shutdown can wait for them to finish.
package background

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/easel-team/easel/server/logging"
	"github.com/easel-team/easel/server/profiling/prometheus"
)

// TaskType classifies an attached routine for metrics and logs.
type TaskType string

const (
	// TaskCompaction renders and stores a board snapshot.
	TaskCompaction TaskType = "compaction"

	// TaskHousekeeping evicts idle per-board state.
	TaskHousekeeping TaskType = "housekeeping"
)

type routineID int32

func (c *routineID) next() string {
	next := atomic.AddInt32((*int32)(c), 1)
	return "b" + strconv.Itoa(int(next))
}

// Background runs goroutines that depend on backend state and waits for
// them to exit when the backend closes.
type Background struct {
	// closing is closed by backend close.
	closing chan struct{}

	// wgMu blocks concurrent WaitGroup mutation while the backend is closing.
	wgMu sync.RWMutex

	// wg waits for attached goroutines on close.
	wg sync.WaitGroup

	// routineID names the logger of each attached routine.
	routineID routineID

	// metrics tracks the number of live routines per task type.
	metrics *prometheus.Metrics
}

// New creates a new background service.
func New(metrics *prometheus.Metrics) *Background {
	return &Background{
		closing: make(chan struct{}),
		metrics: metrics,
	}
}

// AttachGoroutine runs the given function on a goroutine tracked by the
// service's WaitGroup. The function receives a context carrying a routine
// logger. Attaches after Close are dropped with a warning.
func (b *Background) AttachGoroutine(
	f func(ctx context.Context),
	taskType TaskType,
) {
	b.wgMu.RLock() // blocks with an ongoing close(b.closing)
	defer b.wgMu.RUnlock()
	select {
	case <-b.closing:
		logging.DefaultLogger().Warn("backend has closed; skipping AttachGoroutine")
		return
	default:
	}

	b.wg.Add(1)
	routineLogger := logging.New(b.routineID.next())
	b.metrics.AddBackgroundGoroutines(string(taskType))
	go func() {
		defer func() {
			b.wg.Done()
			b.metrics.RemoveBackgroundGoroutines(string(taskType))
		}()
		f(logging.With(context.Background(), routineLogger))
	}()
}

// Close stops accepting new goroutines and waits for the attached ones to
// exit.
func (b *Background) Close() {
	b.wgMu.Lock()
	close(b.closing)
	b.wgMu.Unlock()

	b.wg.Wait()
}
