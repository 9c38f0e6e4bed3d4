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

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/pkg/errors"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/database"
)

// BuildSync assembles the initial SYNC_SNAPSHOT for a joining connection.
//
// A client that supplies resumeFromSeq gets a delta: only the events after
// that seq, no snapshot. Otherwise the board's snapshot, when present,
// shortens the sync to the image plus the tail of events after it; with no
// snapshot the full log is shipped. Every variant carries lastSeq so the
// client can resume via delta later.
func BuildSync(
	ctx context.Context,
	be *backend.Backend,
	boardID string,
	resumeFromSeq int64,
) (*types.SyncSnapshotPayload, error) {
	lastSeq, err := be.DB.FindMaxSeq(ctx, boardID)
	if err != nil {
		return nil, err
	}

	if resumeFromSeq > 0 {
		infos, err := be.DB.FindEventInfosAfterSeq(ctx, boardID, resumeFromSeq)
		if err != nil {
			return nil, err
		}
		events, err := database.ToEvents(infos)
		if err != nil {
			return nil, err
		}
		return &types.SyncSnapshotPayload{
			BoardID: boardID,
			Events:  events,
			LastSeq: lastSeq,
			IsDelta: true,
		}, nil
	}

	snapshot, err := be.DB.FindSnapshotInfo(ctx, boardID)
	if err != nil && !errors.IsStatus(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	afterSeq := int64(0)
	var ref *types.SnapshotRef
	if snapshot != nil {
		afterSeq = snapshot.Seq
		ref = snapshot.ToSnapshotRef()
	}

	infos, err := be.DB.FindEventInfosAfterSeq(ctx, boardID, afterSeq)
	if err != nil {
		return nil, err
	}
	events, err := database.ToEvents(infos)
	if err != nil {
		return nil, err
	}

	return &types.SyncSnapshotPayload{
		BoardID:  boardID,
		Events:   events,
		LastSeq:  lastSeq,
		IsDelta:  false,
		Snapshot: ref,
	}, nil
}
