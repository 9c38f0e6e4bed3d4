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

package housekeeping

import (
	"context"
	"time"

	"github.com/easel-team/easel/server/logging"
)

// Task is one housekeeping pass. It receives the per-run candidate limit
// and returns how many candidates it processed.
type Task func(ctx context.Context, limit int) int

// Housekeeping periodically runs cleanup tasks over the in-memory state of
// the server.
type Housekeeping struct {
	interval        time.Duration
	candidatesLimit int
	task            Task

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start creates a housekeeping instance and starts its loop.
func Start(conf *Config, task Task) (*Housekeeping, error) {
	h, err := New(conf, task)
	if err != nil {
		return nil, err
	}
	h.Start()

	return h, nil
}

// New creates a new housekeeping instance.
func New(conf *Config, task Task) (*Housekeeping, error) {
	interval, err := conf.ParseInterval()
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	return &Housekeeping{
		interval:        interval,
		candidatesLimit: conf.CandidatesLimit,
		task:            task,

		ctx:        ctx,
		cancelFunc: cancelFunc,
	}, nil
}

// Start starts the housekeeping loop.
func (h *Housekeeping) Start() {
	go h.run()
}

// Stop stops the housekeeping loop.
func (h *Housekeeping) Stop() error {
	h.cancelFunc()
	return nil
}

func (h *Housekeeping) run() {
	logger := logging.New("housekeeping")

	for {
		select {
		case <-time.After(h.interval):
		case <-h.ctx.Done():
			return
		}

		ctx := logging.With(h.ctx, logger)
		if count := h.task(ctx, h.candidatesLimit); count > 0 {
			logger.Debugf("housekeeping evicted %d candidates", count)
		}
	}
}
