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

package boards_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/database"
	"github.com/easel-team/easel/server/backend/rooms"
	"github.com/easel-team/easel/server/boards"
	"github.com/easel-team/easel/server/profiling/prometheus"
)

func setUpBackend(t *testing.T) *backend.Backend {
	t.Helper()

	return setUpBackendWithThreshold(t, 1000)
}

func setUpBackendWithThreshold(t *testing.T, threshold int64) *backend.Backend {
	t.Helper()

	metrics, err := prometheus.NewMetrics()
	assert.NoError(t, err)

	be, err := backend.New(&backend.Config{
		CompactionThreshold: threshold,
		CursorBatchInterval: "50ms",
		DrawBucketSize:      60,
		DrawRefillRate:      30,
		CursorBucketSize:    120,
		CursorRefillRate:    60,
	}, nil, metrics)
	assert.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, be.Shutdown())
	})
	return be
}

func strokePayload(t *testing.T, strokeID string) json.RawMessage {
	t.Helper()

	payload, err := json.Marshal(types.StrokePayload{
		StrokeID: strokeID,
		Color:    "#112233",
		Width:    3,
		Points:   []types.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
	})
	assert.NoError(t, err)
	return payload
}

func TestSequence(t *testing.T) {
	ctx := context.Background()

	t.Run("strictly increasing seq test", func(t *testing.T) {
		be := setUpBackend(t)

		for want := int64(1); want <= 10; want++ {
			event, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", want)),
			)
			assert.NoError(t, err)
			assert.Equal(t, want, event.Seq)
		}

		maxSeq, err := be.DB.FindMaxSeq(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, int64(10), maxSeq)
	})

	t.Run("concurrent sequence no gaps test", func(t *testing.T) {
		be := setUpBackend(t)

		const workers = 20
		const perWorker = 10

		var wg sync.WaitGroup
		seqCh := make(chan int64, workers*perWorker)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					event, err := boards.Sequence(
						ctx, be, "board-a", fmt.Sprintf("user-%d", worker),
						types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d-%d", worker, j)),
					)
					assert.NoError(t, err)
					seqCh <- event.Seq
				}
			}(i)
		}
		wg.Wait()
		close(seqCh)

		seen := make(map[int64]bool)
		for seq := range seqCh {
			assert.False(t, seen[seq], "seq %d assigned twice", seq)
			seen[seq] = true
		}
		assert.Len(t, seen, workers*perWorker)
		for seq := int64(1); seq <= workers*perWorker; seq++ {
			assert.True(t, seen[seq], "seq %d missing", seq)
		}
	})

	t.Run("invalid event test", func(t *testing.T) {
		be := setUpBackend(t)

		_, err := boards.Sequence(
			ctx, be, "board-a", "user-a",
			types.EventType("scribble"), strokePayload(t, "s-1"),
		)
		assert.ErrorIs(t, err, boards.ErrInvalidEvent)

		_, err = boards.Sequence(
			ctx, be, "board-a", "user-a",
			types.EventStroke, json.RawMessage(`{"strokeId":""}`),
		)
		assert.ErrorIs(t, err, boards.ErrInvalidEvent)

		// Nothing was appended.
		maxSeq, err := be.DB.FindMaxSeq(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), maxSeq)
	})

	t.Run("fan out in seq order test", func(t *testing.T) {
		be := setUpBackend(t)

		sub := rooms.NewSubscription(types.UserIdentity{UserID: "viewer"})
		be.Rooms.Join("board-a", sub)

		for i := 0; i < 5; i++ {
			_, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", i)),
			)
			assert.NoError(t, err)
		}

		for want := int64(1); want <= 5; want++ {
			msg := <-sub.Events()
			assert.Equal(t, types.MsgDrawEvent, msg.Type)

			var event types.DrawEvent
			assert.NoError(t, json.Unmarshal(msg.Payload, &event))
			assert.Equal(t, want, event.Seq)
		}
	})

	t.Run("counter re-derive after duplicate test", func(t *testing.T) {
		be := setUpBackend(t)

		event, err := boards.Sequence(
			ctx, be, "board-a", "user-a",
			types.EventStroke, strokePayload(t, "s-1"),
		)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), event.Seq)

		// Sneak a row past the sequencer to force a duplicate-key failure on
		// the next append.
		info, err := database.NewEventInfo(&types.DrawEvent{
			BoardID: "board-a",
			Seq:     2,
			Type:    types.EventStroke,
			UserID:  "user-b",
			Payload: strokePayload(t, "s-2"),
		})
		assert.NoError(t, err)
		assert.NoError(t, be.DB.CreateEventInfo(ctx, info))

		_, err = boards.Sequence(
			ctx, be, "board-a", "user-a",
			types.EventStroke, strokePayload(t, "s-3"),
		)
		assert.ErrorIs(t, err, database.ErrEventAlreadyExists)

		// The dropped counter re-derives from the durable log, so the next
		// append lands after the sneaked row.
		event, err = boards.Sequence(
			ctx, be, "board-a", "user-a",
			types.EventStroke, strokePayload(t, "s-4"),
		)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), event.Seq)
	})

	t.Run("evict idle counters test", func(t *testing.T) {
		be := setUpBackend(t)

		_, err := boards.Sequence(
			ctx, be, "board-idle", "user-a",
			types.EventStroke, strokePayload(t, "s-1"),
		)
		assert.NoError(t, err)

		sub := rooms.NewSubscription(types.UserIdentity{UserID: "user-b"})
		be.Rooms.Join("board-live", sub)
		_, err = boards.Sequence(
			ctx, be, "board-live", "user-b",
			types.EventStroke, strokePayload(t, "s-1"),
		)
		assert.NoError(t, err)

		evicted := boards.EvictIdleCounters(ctx, be, 0)
		assert.Equal(t, []string{"board-idle"}, evicted)

		// An evicted counter re-derives transparently.
		event, err := boards.Sequence(
			ctx, be, "board-idle", "user-a",
			types.EventStroke, strokePayload(t, "s-2"),
		)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), event.Seq)
	})
}

func TestBuildSync(t *testing.T) {
	ctx := context.Background()

	t.Run("full sync without snapshot test", func(t *testing.T) {
		be := setUpBackend(t)

		for i := 0; i < 7; i++ {
			_, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", i)),
			)
			assert.NoError(t, err)
		}

		sync, err := boards.BuildSync(ctx, be, "board-a", 0)
		assert.NoError(t, err)
		assert.False(t, sync.IsDelta)
		assert.Nil(t, sync.Snapshot)
		assert.Len(t, sync.Events, 7)
		assert.Equal(t, int64(7), sync.LastSeq)
	})

	t.Run("delta sync test", func(t *testing.T) {
		be := setUpBackend(t)

		for i := 0; i < 47; i++ {
			_, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", i)),
			)
			assert.NoError(t, err)
		}

		sync, err := boards.BuildSync(ctx, be, "board-a", 42)
		assert.NoError(t, err)
		assert.True(t, sync.IsDelta)
		assert.Nil(t, sync.Snapshot)
		assert.Len(t, sync.Events, 5)
		assert.Equal(t, int64(43), sync.Events[0].Seq)
		assert.Equal(t, int64(47), sync.Events[4].Seq)
		assert.Equal(t, int64(47), sync.LastSeq)
	})

	t.Run("snapshot sync test", func(t *testing.T) {
		be := setUpBackend(t)

		for i := 0; i < 10; i++ {
			_, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", i)),
			)
			assert.NoError(t, err)
		}
		assert.NoError(t, be.DB.CreateSnapshotInfo(ctx, &database.SnapshotInfo{
			BoardID:   "board-a",
			Seq:       8,
			ImageData: "png-data",
			OffsetX:   -100,
			OffsetY:   -100,
		}))

		sync, err := boards.BuildSync(ctx, be, "board-a", 0)
		assert.NoError(t, err)
		assert.False(t, sync.IsDelta)
		assert.NotNil(t, sync.Snapshot)
		assert.Equal(t, int64(8), sync.Snapshot.Seq)
		assert.Equal(t, "png-data", sync.Snapshot.ImageData)
		assert.Len(t, sync.Events, 2)
		assert.Equal(t, int64(9), sync.Events[0].Seq)
		assert.Equal(t, int64(10), sync.LastSeq)
	})
}

func waitForSnapshot(
	t *testing.T,
	be *backend.Backend,
	boardID string,
) *database.SnapshotInfo {
	t.Helper()

	ctx := context.Background()
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline); {
		if snapshot, err := be.DB.FindSnapshotInfo(ctx, boardID); err == nil {
			return snapshot
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no snapshot for %s within 3s", boardID)
	return nil
}

func TestMaybeScheduleCompaction(t *testing.T) {
	ctx := context.Background()

	t.Run("threshold crossing schedules compaction test", func(t *testing.T) {
		be := setUpBackendWithThreshold(t, 4)

		for i := 0; i < 3; i++ {
			event, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", i)),
			)
			assert.NoError(t, err)
			boards.MaybeScheduleCompaction(be, "board-a", event.Seq)
		}

		// Below the threshold nothing runs.
		time.Sleep(50 * time.Millisecond)
		_, err := be.DB.FindSnapshotInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)

		event, err := boards.Sequence(
			ctx, be, "board-a", "user-a",
			types.EventStroke, strokePayload(t, "s-3"),
		)
		assert.NoError(t, err)
		assert.Equal(t, int64(4), event.Seq)
		boards.MaybeScheduleCompaction(be, "board-a", event.Seq)

		snapshot := waitForSnapshot(t, be, "board-a")
		assert.Equal(t, int64(4), snapshot.Seq)
		assert.NotEmpty(t, snapshot.ImageData)
	})

	t.Run("running compaction suppresses a second one test", func(t *testing.T) {
		be := setUpBackendWithThreshold(t, 2)

		for i := 0; i < 2; i++ {
			_, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", i)),
			)
			assert.NoError(t, err)
		}

		// Hold the board's compaction lock the way a running compaction
		// would; the schedule must yield instead of piling up.
		assert.True(t, be.Lockers.TryLock("compaction/board-a"))
		boards.MaybeScheduleCompaction(be, "board-a", 2)
		time.Sleep(50 * time.Millisecond)
		_, err := be.DB.FindSnapshotInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)
		assert.NoError(t, be.Lockers.Unlock("compaction/board-a"))

		boards.MaybeScheduleCompaction(be, "board-a", 2)
		snapshot := waitForSnapshot(t, be, "board-a")
		assert.Equal(t, int64(2), snapshot.Seq)
	})

	t.Run("disabled threshold schedules nothing test", func(t *testing.T) {
		be := setUpBackendWithThreshold(t, 0)

		event, err := boards.Sequence(
			ctx, be, "board-a", "user-a",
			types.EventStroke, strokePayload(t, "s-0"),
		)
		assert.NoError(t, err)
		boards.MaybeScheduleCompaction(be, "board-a", event.Seq)

		time.Sleep(50 * time.Millisecond)
		_, err = be.DB.FindSnapshotInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)
	})
}

func TestCompact(t *testing.T) {
	ctx := context.Background()

	t.Run("compact empty board test", func(t *testing.T) {
		be := setUpBackend(t)

		assert.NoError(t, boards.Compact(ctx, be, "board-a"))
		_, err := be.DB.FindSnapshotInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)
	})

	t.Run("compact folds log into snapshot test", func(t *testing.T) {
		be := setUpBackend(t)

		for i := 0; i < 12; i++ {
			_, err := boards.Sequence(
				ctx, be, "board-a", "user-a",
				types.EventStroke, strokePayload(t, fmt.Sprintf("s-%d", i)),
			)
			assert.NoError(t, err)
		}

		assert.NoError(t, boards.Compact(ctx, be, "board-a"))

		snapshot, err := be.DB.FindSnapshotInfo(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, int64(12), snapshot.Seq)
		assert.NotEmpty(t, snapshot.ImageData)

		// Syncs built after the compaction ride on the snapshot.
		sync, err := boards.BuildSync(ctx, be, "board-a", 0)
		assert.NoError(t, err)
		assert.NotNil(t, sync.Snapshot)
		assert.Empty(t, sync.Events)
	})
}
