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

// Package boards implements the per-board event sequencer and the initial
// sync builder. The sequencer is the single ordering authority: it hands out
// strictly increasing sequence numbers per board and persists each event
// before the number is committed.
package boards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/pkg/errors"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/database"
)

// ErrInvalidEvent is returned when a draw event carries an unknown type or
// a malformed payload.
var ErrInvalidEvent = errors.InvalidArgument("invalid draw event").WithCode("ErrInvalidEvent")

// seqLockKey names the per-board lock guarding the sequence counter and the
// dependent append. The lock is the hot critical section of the write path;
// nothing else may be done under it.
func seqLockKey(boardID string) string {
	return "seq/" + boardID
}

// compactionLockKey names the per-board lock that suppresses concurrent
// compactions.
func compactionLockKey(boardID string) string {
	return "compaction/" + boardID
}

// InitSequencer makes sure the board's sequence counter is loaded, deriving
// it from the durable log's maximum on first use. It returns the board's
// current last seq.
func InitSequencer(ctx context.Context, be *backend.Backend, boardID string) (int64, error) {
	be.Lockers.Lock(seqLockKey(boardID))
	defer func() {
		_ = be.Lockers.Unlock(seqLockKey(boardID))
	}()

	return ensureCounter(ctx, be, boardID)
}

// ensureCounter loads the counter from MaxSeq+1 on first use. The caller
// must hold the board's sequence lock.
func ensureCounter(ctx context.Context, be *backend.Backend, boardID string) (int64, error) {
	if lastSeq, ok := be.NextSeqs.Get(boardID); ok {
		return lastSeq, nil
	}

	maxSeq, err := be.DB.FindMaxSeq(ctx, boardID)
	if err != nil {
		return 0, err
	}
	be.NextSeqs.Set(boardID, maxSeq)
	return maxSeq, nil
}

// Sequence assigns the next sequence number of the board to the given
// mutation, persists it, fans it out to the board's room and returns the
// canonical event. Calls for the same
// board are totally ordered; the returned seq values are strictly increasing
// with no gaps. On a persistence failure the reserved seq is not committed,
// so the next call reuses it.
func Sequence(
	ctx context.Context,
	be *backend.Backend,
	boardID string,
	userID string,
	eventType types.EventType,
	payload json.RawMessage,
) (*types.DrawEvent, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%s: %w", eventType, ErrInvalidEvent)
	}
	if _, err := types.DecodePayload(eventType, payload); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidEvent)
	}

	start := time.Now()
	be.Lockers.Lock(seqLockKey(boardID))
	defer func() {
		_ = be.Lockers.Unlock(seqLockKey(boardID))
	}()

	lastSeq, err := ensureCounter(ctx, be, boardID)
	if err != nil {
		return nil, err
	}

	event := &types.DrawEvent{
		BoardID:   boardID,
		Seq:       lastSeq + 1,
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}

	info, err := database.NewEventInfo(event)
	if err != nil {
		return nil, err
	}
	if err := be.DB.CreateEventInfo(ctx, info); err != nil {
		// The counter stays put; the reserved seq is reused by the next
		// caller once the store recovers. A duplicate-key failure here
		// means the counter drifted from the log; dropping it forces a
		// re-derive from MaxSeq on the next call.
		if errors.IsStatus(err, errors.ErrCodeFailedPrecondition) {
			be.NextSeqs.Delete(boardID, func(int64, bool) bool { return true })
		}
		return nil, err
	}

	be.NextSeqs.Set(boardID, event.Seq)

	// Fan out while still holding the board lock. Publishing only enqueues
	// on per-recipient buffers, so the critical section stays short, and
	// doing it here guarantees every recipient observes events in seq
	// order.
	msg, err := types.NewMessage(types.MsgDrawEvent, event)
	if err != nil {
		return nil, err
	}
	be.Rooms.Publish(boardID, "", msg)

	be.Metrics.AddEventsSequenced(string(eventType))
	be.Metrics.ObserveSequenceSeconds(time.Since(start).Seconds())
	return event, nil
}

// EvictIdleCounters drops the sequence counters of boards that no longer
// have live connections. Safe at any time: a dropped counter is re-derived
// from the log on the next use. It returns the evicted board IDs.
func EvictIdleCounters(_ context.Context, be *backend.Backend, limit int) []string {
	var evicted []string
	for _, boardID := range be.NextSeqs.Keys() {
		if limit > 0 && len(evicted) >= limit {
			break
		}
		if be.Rooms.ConnectionCount(boardID) > 0 {
			continue
		}

		// Take the sequence lock so an in-flight Sequence call never loses
		// its counter mid-append.
		be.Lockers.Lock(seqLockKey(boardID))
		if be.Rooms.ConnectionCount(boardID) == 0 {
			if be.NextSeqs.Delete(boardID, func(_ int64, exists bool) bool { return exists }) {
				evicted = append(evicted, boardID)
			}
		}
		_ = be.Lockers.Unlock(seqLockKey(boardID))
	}
	return evicted
}
