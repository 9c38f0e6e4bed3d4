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

package boards

import (
	"context"
	"time"

	"github.com/easel-team/easel/pkg/raster"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/database"
	"github.com/easel-team/easel/server/logging"
)

// MaybeScheduleCompaction schedules an asynchronous compaction when the
// given seq crosses the configured threshold and no compaction is already
// running for the board. It never blocks the write path.
func MaybeScheduleCompaction(be *backend.Backend, boardID string, seq int64) {
	threshold := be.Config.CompactionThreshold
	if threshold <= 0 || seq%threshold != 0 {
		return
	}

	// The per-board TryLock suppresses duplicates; it is released by the
	// background routine when the compaction finishes.
	if !be.Lockers.TryLock(compactionLockKey(boardID)) {
		return
	}

	be.Background.AttachGoroutine(func(ctx context.Context) {
		defer func() {
			_ = be.Lockers.Unlock(compactionLockKey(boardID))
		}()

		if err := Compact(ctx, be, boardID); err != nil {
			// A failed compaction has no client impact; the previous
			// snapshot, if any, remains valid and the next threshold
			// crossing retries.
			be.Metrics.AddCompactions("error")
			logging.From(ctx).Errorf("compact %s: %v", boardID, err)
			return
		}
		be.Metrics.AddCompactions("ok")
	}, "compaction")
}

// Compact folds the board's full log into one raster snapshot pinned at the
// last rendered seq and upserts it. Events appended while the render runs
// stay after the snapshot's seq, so replay semantics are unaffected.
func Compact(ctx context.Context, be *backend.Backend, boardID string) error {
	start := time.Now()

	infos, err := be.DB.FindEventInfos(ctx, boardID)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return nil
	}

	events, err := database.ToEvents(infos)
	if err != nil {
		return err
	}

	result, err := raster.Render(events)
	if err != nil {
		return err
	}

	imageData, err := raster.EncodePNG(result.Image)
	if err != nil {
		return err
	}

	if err := be.DB.CreateSnapshotInfo(ctx, &database.SnapshotInfo{
		BoardID:   boardID,
		Seq:       events[len(events)-1].Seq,
		ImageData: imageData,
		OffsetX:   result.OffsetX,
		OffsetY:   result.OffsetY,
	}); err != nil {
		return err
	}

	be.Metrics.AddSnapshotBytes(len(imageData))
	be.Metrics.ObserveCompactionSeconds(time.Since(start).Seconds())
	logging.From(ctx).Infof(
		"compacted %s at seq %d (%d events, %d bytes)",
		boardID, events[len(events)-1].Seq, len(events), len(imageData),
	)
	return nil
}
