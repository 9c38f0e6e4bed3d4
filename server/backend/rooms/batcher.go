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

package rooms

import (
	"sync"
	"time"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/server/logging"
	"github.com/easel-team/easel/server/profiling/prometheus"
)

// CursorBatcher coalesces cursor movements and broadcasts them on a fixed
// tick. Within one tick only the latest position per user survives, so a
// user moving twenty times produces one outbound message per peer. Delivery
// is lossy by design; the last position always wins.
type CursorBatcher struct {
	manager *Manager
	window  time.Duration
	logger  logging.Logger
	metrics *prometheus.Metrics

	mu      sync.Mutex
	pending map[string]map[string]types.Cursor

	closeChan chan struct{}
	closeOnce sync.Once
}

// NewCursorBatcher creates a new CursorBatcher and starts its tick loop.
func NewCursorBatcher(
	manager *Manager,
	window time.Duration,
	metrics *prometheus.Metrics,
) *CursorBatcher {
	b := &CursorBatcher{
		manager:   manager,
		window:    window,
		logger:    logging.New("cursors"),
		metrics:   metrics,
		pending:   make(map[string]map[string]types.Cursor),
		closeChan: make(chan struct{}),
	}

	go b.processLoop()
	return b
}

// Queue records the latest cursor position of the user on the board for the
// next tick.
func (b *CursorBatcher) Queue(boardID string, cursor types.Cursor) {
	b.mu.Lock()
	defer b.mu.Unlock()

	board, ok := b.pending[boardID]
	if !ok {
		board = make(map[string]types.Cursor)
		b.pending[boardID] = board
	}
	board[cursor.UserID] = cursor
}

func (b *CursorBatcher) processLoop() {
	ticker := time.NewTicker(b.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.closeChan:
			b.flush()
			return
		}
	}
}

// flush broadcasts one CURSOR_BATCH per board with pending entries, then
// clears the buffer.
func (b *CursorBatcher) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]map[string]types.Cursor)
	b.mu.Unlock()

	for boardID, cursors := range pending {
		batch := types.CursorBatchPayload{
			BoardID: boardID,
			Cursors: make([]types.Cursor, 0, len(cursors)),
		}
		for _, cursor := range cursors {
			batch.Cursors = append(batch.Cursors, cursor)
		}

		msg, err := types.NewMessage(types.MsgCursorBatch, batch)
		if err != nil {
			b.logger.Errorf("encode cursor batch for %s: %v", boardID, err)
			continue
		}
		b.manager.Publish(boardID, "", msg)
		b.metrics.AddCursorBatchesSent()
	}
}

// Close stops the tick loop after one final flush.
func (b *CursorBatcher) Close() {
	b.closeOnce.Do(func() {
		close(b.closeChan)
	})
}
