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

package memory_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/server/backend/database"
	"github.com/easel-team/easel/server/backend/database/memory"
)

func newEventInfo(t *testing.T, boardID string, seq int64) *database.EventInfo {
	t.Helper()

	payload, err := json.Marshal(types.StrokePayload{
		StrokeID: fmt.Sprintf("s-%d", seq),
		Color:    "#000000",
		Width:    2,
		Points:   []types.Point{{X: 1, Y: 1}},
	})
	assert.NoError(t, err)

	info, err := database.NewEventInfo(&types.DrawEvent{
		BoardID:   boardID,
		Seq:       seq,
		Type:      types.EventStroke,
		UserID:    "user-a",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	})
	assert.NoError(t, err)
	return info
}

func TestDB(t *testing.T) {
	ctx := context.Background()

	t.Run("ensure board info test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)
		defer func() { assert.NoError(t, db.Close()) }()

		info, err := db.EnsureBoardInfo(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, "board-a", info.ID)
		assert.Empty(t, info.OwnerID)
		assert.False(t, info.IsPrivate)

		// A second ensure returns the same board.
		again, err := db.EnsureBoardInfo(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, info.CreatedAt, again.CreatedAt)
	})

	t.Run("create board info test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		created, err := db.CreateBoardInfo(ctx, &database.BoardInfo{
			ID:        "board-a",
			Name:      "retro",
			OwnerID:   "owner-1",
			IsPrivate: true,
			CreatedAt: time.Now(),
		})
		assert.NoError(t, err)
		assert.Equal(t, "retro", created.Name)

		_, err = db.CreateBoardInfo(ctx, &database.BoardInfo{ID: "board-a"})
		assert.ErrorIs(t, err, database.ErrBoardAlreadyExists)

		found, err := db.FindBoardInfo(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, "owner-1", found.OwnerID)
		assert.True(t, found.IsPrivate)

		_, err = db.FindBoardInfo(ctx, "missing")
		assert.ErrorIs(t, err, database.ErrBoardNotFound)
	})

	t.Run("list board infos by owner test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		base := time.Now()
		for i := 0; i < 3; i++ {
			_, err = db.CreateBoardInfo(ctx, &database.BoardInfo{
				ID:        fmt.Sprintf("board-%d", i),
				OwnerID:   "owner-1",
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
			assert.NoError(t, err)
		}
		_, err = db.CreateBoardInfo(ctx, &database.BoardInfo{
			ID:        "board-other",
			OwnerID:   "owner-2",
			CreatedAt: base,
		})
		assert.NoError(t, err)

		infos, err := db.ListBoardInfosByOwner(ctx, "owner-1")
		assert.NoError(t, err)
		assert.Len(t, infos, 3)
		// Newest first.
		assert.Equal(t, "board-2", infos[0].ID)
		assert.Equal(t, "board-0", infos[2].ID)
	})

	t.Run("event log test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		maxSeq, err := db.FindMaxSeq(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), maxSeq)

		for seq := int64(1); seq <= 5; seq++ {
			assert.NoError(t, db.CreateEventInfo(ctx, newEventInfo(t, "board-a", seq)))
		}
		// Interleave another board to check index isolation.
		assert.NoError(t, db.CreateEventInfo(ctx, newEventInfo(t, "board-b", 1)))

		err = db.CreateEventInfo(ctx, newEventInfo(t, "board-a", 3))
		assert.ErrorIs(t, err, database.ErrEventAlreadyExists)

		maxSeq, err = db.FindMaxSeq(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, int64(5), maxSeq)

		infos, err := db.FindEventInfos(ctx, "board-a")
		assert.NoError(t, err)
		assert.Len(t, infos, 5)
		for i, info := range infos {
			assert.Equal(t, int64(i+1), info.Seq)
		}

		infos, err = db.FindEventInfosAfterSeq(ctx, "board-a", 3)
		assert.NoError(t, err)
		assert.Len(t, infos, 2)
		assert.Equal(t, int64(4), infos[0].Seq)
		assert.Equal(t, int64(5), infos[1].Seq)
	})

	t.Run("snapshot test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.FindSnapshotInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)

		assert.NoError(t, db.CreateSnapshotInfo(ctx, &database.SnapshotInfo{
			BoardID:   "board-a",
			Seq:       10,
			ImageData: "png-1",
		}))

		// A newer snapshot replaces the previous one.
		assert.NoError(t, db.CreateSnapshotInfo(ctx, &database.SnapshotInfo{
			BoardID:   "board-a",
			Seq:       20,
			ImageData: "png-2",
		}))

		snapshot, err := db.FindSnapshotInfo(ctx, "board-a")
		assert.NoError(t, err)
		assert.Equal(t, int64(20), snapshot.Seq)
		assert.Equal(t, "png-2", snapshot.ImageData)

		assert.NoError(t, db.DeleteSnapshotInfo(ctx, "board-a"))
		_, err = db.FindSnapshotInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)
	})

	t.Run("delete board info test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.CreateBoardInfo(ctx, &database.BoardInfo{
			ID:        "board-a",
			OwnerID:   "owner-1",
			CreatedAt: time.Now(),
		})
		assert.NoError(t, err)
		assert.NoError(t, db.CreateEventInfo(ctx, newEventInfo(t, "board-a", 1)))
		assert.NoError(t, db.CreateSnapshotInfo(ctx, &database.SnapshotInfo{
			BoardID: "board-a",
			Seq:     1,
		}))

		// Only the owner may delete; others get not-found.
		err = db.DeleteBoardInfo(ctx, "board-a", "owner-2")
		assert.ErrorIs(t, err, database.ErrBoardNotFound)

		assert.NoError(t, db.DeleteBoardInfo(ctx, "board-a", "owner-1"))

		_, err = db.FindBoardInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrBoardNotFound)
		infos, err := db.FindEventInfos(ctx, "board-a")
		assert.NoError(t, err)
		assert.Empty(t, infos)
		_, err = db.FindSnapshotInfo(ctx, "board-a")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)
	})
}
