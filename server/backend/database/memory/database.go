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

// Package memory implements the database interface using an in-memory
// database. It backs development mode and unit tests; production deployments
// configure Postgres instead.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/easel-team/easel/server/backend/database"
)

// DB is an in-memory database for testing or development.
type DB struct {
	db *memdb.MemDB
}

// New returns a new in-memory database.
func New() (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &DB{
		db: memDB,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return nil
}

// FindBoardInfo finds the board of the given ID.
func (d *DB) FindBoardInfo(_ context.Context, id string) (*database.BoardInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblBoards, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find board %s: %w", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", id, database.ErrBoardNotFound)
	}

	return raw.(*database.BoardInfo).DeepCopy(), nil
}

// CreateBoardInfo creates the given board.
func (d *DB) CreateBoardInfo(
	_ context.Context,
	info *database.BoardInfo,
) (*database.BoardInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tblBoards, "id", info.ID)
	if err != nil {
		return nil, fmt.Errorf("find board %s: %w", info.ID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", info.ID, database.ErrBoardAlreadyExists)
	}

	created := info.DeepCopy()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	if err := txn.Insert(tblBoards, created); err != nil {
		return nil, fmt.Errorf("insert board %s: %w", info.ID, err)
	}
	txn.Commit()

	return created.DeepCopy(), nil
}

// EnsureBoardInfo finds the board of the given ID, creating it as a public,
// ownerless board if it does not exist yet.
func (d *DB) EnsureBoardInfo(_ context.Context, id string) (*database.BoardInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblBoards, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find board %s: %w", id, err)
	}
	if raw != nil {
		return raw.(*database.BoardInfo).DeepCopy(), nil
	}

	created := &database.BoardInfo{
		ID:        id,
		CreatedAt: time.Now(),
	}
	if err := txn.Insert(tblBoards, created); err != nil {
		return nil, fmt.Errorf("insert board %s: %w", id, err)
	}
	txn.Commit()

	return created.DeepCopy(), nil
}

// ListBoardInfosByOwner returns the boards owned by the given user, newest
// first.
func (d *DB) ListBoardInfosByOwner(
	_ context.Context,
	ownerID string,
) ([]*database.BoardInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iterator, err := txn.Get(tblBoards, "owner_id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list boards of %s: %w", ownerID, err)
	}

	var infos []*database.BoardInfo
	for raw := iterator.Next(); raw != nil; raw = iterator.Next() {
		infos = append(infos, raw.(*database.BoardInfo).DeepCopy())
	}

	// The owner_id index does not order by creation time; the listing API
	// promises newest first.
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// DeleteBoardInfo deletes the board and everything that hangs off it. The
// delete only matches when ownerID equals the stored owner.
func (d *DB) DeleteBoardInfo(_ context.Context, id string, ownerID string) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblBoards, "id", id)
	if err != nil {
		return fmt.Errorf("find board %s: %w", id, err)
	}
	if raw == nil || raw.(*database.BoardInfo).OwnerID != ownerID {
		// Not distinguishing "missing" from "not yours" keeps non-owners
		// from probing for a board's existence.
		return fmt.Errorf("%s: %w", id, database.ErrBoardNotFound)
	}

	if _, err := txn.DeleteAll(tblEvents, "board_id", id); err != nil {
		return fmt.Errorf("delete events of %s: %w", id, err)
	}
	if _, err := txn.DeleteAll(tblSnapshots, "id", id); err != nil {
		return fmt.Errorf("delete snapshot of %s: %w", id, err)
	}
	if err := txn.Delete(tblBoards, raw); err != nil {
		return fmt.Errorf("delete board %s: %w", id, err)
	}
	txn.Commit()

	return nil
}

// FindMaxSeq returns the highest sequence number appended to the board, or
// zero when the log is empty.
func (d *DB) FindMaxSeq(_ context.Context, boardID string) (int64, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iterator, err := txn.ReverseLowerBound(
		tblEvents,
		"id",
		boardID,
		int64(math.MaxInt64),
	)
	if err != nil {
		return 0, fmt.Errorf("find max seq of %s: %w", boardID, err)
	}

	if raw := iterator.Next(); raw != nil {
		if info := raw.(*database.EventInfo); info.BoardID == boardID {
			return info.Seq, nil
		}
	}
	return 0, nil
}

// CreateEventInfo appends the given event to the board's log. A duplicate
// (board, seq) fails with ErrEventAlreadyExists.
func (d *DB) CreateEventInfo(_ context.Context, info *database.EventInfo) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tblEvents, "id", info.BoardID, info.Seq)
	if err != nil {
		return fmt.Errorf("find event %s@%d: %w", info.BoardID, info.Seq, err)
	}
	if existing != nil {
		return fmt.Errorf("%s@%d: %w", info.BoardID, info.Seq, database.ErrEventAlreadyExists)
	}

	if err := txn.Insert(tblEvents, info.DeepCopy()); err != nil {
		return fmt.Errorf("insert event %s@%d: %w", info.BoardID, info.Seq, err)
	}
	txn.Commit()

	return nil
}

// FindEventInfos returns the full log of the board in seq order.
func (d *DB) FindEventInfos(
	ctx context.Context,
	boardID string,
) ([]*database.EventInfo, error) {
	return d.FindEventInfosAfterSeq(ctx, boardID, 0)
}

// FindEventInfosAfterSeq returns the events with seq strictly greater than
// the given value, in seq order.
func (d *DB) FindEventInfosAfterSeq(
	_ context.Context,
	boardID string,
	seq int64,
) ([]*database.EventInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iterator, err := txn.LowerBound(tblEvents, "id", boardID, seq+1)
	if err != nil {
		return nil, fmt.Errorf("find events of %s: %w", boardID, err)
	}

	var infos []*database.EventInfo
	for raw := iterator.Next(); raw != nil; raw = iterator.Next() {
		info := raw.(*database.EventInfo)
		if info.BoardID != boardID {
			break
		}
		infos = append(infos, info.DeepCopy())
	}
	return infos, nil
}

// FindSnapshotInfo returns the board's snapshot.
func (d *DB) FindSnapshotInfo(
	_ context.Context,
	boardID string,
) (*database.SnapshotInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblSnapshots, "id", boardID)
	if err != nil {
		return nil, fmt.Errorf("find snapshot of %s: %w", boardID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", boardID, database.ErrSnapshotNotFound)
	}

	return raw.(*database.SnapshotInfo).DeepCopy(), nil
}

// CreateSnapshotInfo stores the given snapshot, replacing any previous one
// for the board.
func (d *DB) CreateSnapshotInfo(_ context.Context, info *database.SnapshotInfo) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	stored := info.DeepCopy()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if err := txn.Insert(tblSnapshots, stored); err != nil {
		return fmt.Errorf("insert snapshot of %s: %w", info.BoardID, err)
	}
	txn.Commit()

	return nil
}

// DeleteSnapshotInfo removes the board's snapshot, if any.
func (d *DB) DeleteSnapshotInfo(_ context.Context, boardID string) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tblSnapshots, "id", boardID); err != nil {
		return fmt.Errorf("delete snapshot of %s: %w", boardID, err)
	}
	txn.Commit()

	return nil
}
